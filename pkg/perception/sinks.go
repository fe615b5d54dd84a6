package perception

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/menta2k/rover-perception/pkg/coords"
	"github.com/menta2k/rover-perception/pkg/types"
)

// PoseProvider supplies the rover pose for the frame being processed
type PoseProvider interface {
	Pose() (types.Pose, error)
}

// MapWriter accumulates class evidence into the persistent world map
type MapWriter interface {
	Accumulate(class types.Class, xs, ys []int) error
	Size() int
}

// VisionWriter receives the per-class masks for display
type VisionWriter interface {
	WriteVision(class types.Class, mask *types.Mask) error
}

// NavSink receives the polar summaries consumed by navigation
type NavSink interface {
	SetRock(p coords.Polar)
	SetNav(p coords.Polar)
}

// Sinks groups the outputs written by a perception step
type Sinks struct {
	Map    MapWriter
	Vision VisionWriter
	Nav    NavSink
}

func (s Sinks) validate() error {
	if s.Map == nil {
		return fmt.Errorf("no world map writer")
	}
	if s.Vision == nil {
		return fmt.Errorf("no vision writer")
	}
	if s.Nav == nil {
		return fmt.Errorf("no navigation sink")
	}
	return nil
}

// StaticPose is a PoseProvider returning a fixed pose
type StaticPose types.Pose

// Pose returns the fixed pose
func (p StaticPose) Pose() (types.Pose, error) {
	return types.Pose(p), nil
}

// VisionBuffer is a 3-channel image with one channel per class.
// A set mask pixel is written as full intensity.
type VisionBuffer struct {
	mu     sync.RWMutex
	width  int
	height int
	// pix is row-major [y][x][class]
	pix []uint8
}

// NewVisionBuffer creates a black buffer with the rectified frame's extent
func NewVisionBuffer(width, height int) *VisionBuffer {
	return &VisionBuffer{
		width:  width,
		height: height,
		pix:    make([]uint8, width*height*types.NumClasses),
	}
}

// Size returns the buffer width and height
func (v *VisionBuffer) Size() (int, int) {
	return v.width, v.height
}

// WriteVision overwrites the class channel with the mask scaled to 0/255
func (v *VisionBuffer) WriteVision(class types.Class, mask *types.Mask) error {
	if !class.Valid() {
		return fmt.Errorf("unknown class %d", int(class))
	}
	if mask.Width != v.width || mask.Height != v.height {
		return fmt.Errorf("%w: %dx%d mask for %dx%d vision buffer",
			types.ErrMalformedFrame, mask.Width, mask.Height, v.width, v.height)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i, b := range mask.Bits {
		v.pix[i*types.NumClasses+int(class)] = 255 * b
	}
	return nil
}

// At returns the channel value for class at column x, row y
func (v *VisionBuffer) At(x, y int, class types.Class) uint8 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pix[(y*v.width+x)*types.NumClasses+int(class)]
}

// Image renders the buffer with obstacle, rock and ground as red, green and blue
func (v *VisionBuffer) Image() *image.NRGBA {
	v.mu.RLock()
	defer v.mu.RUnlock()
	img := image.NewNRGBA(image.Rect(0, 0, v.width, v.height))
	for i := 0; i < v.width*v.height; i++ {
		src := v.pix[i*types.NumClasses : (i+1)*types.NumClasses]
		dst := img.Pix[4*i : 4*i+4]
		dst[0] = src[types.Obstacle]
		dst[1] = src[types.Rock]
		dst[2] = src[types.Ground]
		dst[3] = 0xff
	}
	return img
}

// NavState keeps the latest published polar sets
type NavState struct {
	mu   sync.RWMutex
	rock coords.Polar
	nav  coords.Polar
}

// SetRock publishes the rock distances and angles
func (n *NavState) SetRock(p coords.Polar) {
	n.mu.Lock()
	n.rock = p
	n.mu.Unlock()
}

// SetNav publishes the navigable-terrain distances and angles
func (n *NavState) SetNav(p coords.Polar) {
	n.mu.Lock()
	n.nav = p
	n.mu.Unlock()
}

// Rock returns the latest rock polar set
func (n *NavState) Rock() coords.Polar {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rock
}

// Nav returns the latest navigable polar set
func (n *NavState) Nav() coords.Polar {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nav
}

// Summary condenses a polar set for logging and for navigation consumers
type Summary struct {
	Count int `json:"count"`
	// Angles in degrees, distances in rectified pixels
	MeanAngle    float64 `json:"mean_angle"`
	MedianAngle  float64 `json:"median_angle"`
	MeanDistance float64 `json:"mean_distance"`
}

// Summarize computes the summary of a polar set; an empty set yields a zero summary
func Summarize(p coords.Polar) Summary {
	if p.Len() == 0 {
		return Summary{}
	}
	degrees := make([]float64, p.Len())
	for i, a := range p.Angle {
		degrees[i] = a * 180 / math.Pi
	}

	s := Summary{Count: p.Len()}
	// Inputs are non-empty, so stats cannot fail here
	s.MeanAngle, _ = stats.Mean(degrees)
	s.MedianAngle, _ = stats.Median(degrees)
	s.MeanDistance, _ = stats.Mean(p.Dist)
	return s
}
