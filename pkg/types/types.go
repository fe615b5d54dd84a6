package types

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

var (
	// ErrMalformedFrame is returned when a frame's extent and pixel buffer disagree
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMalformedPose is returned for a pose with non-finite components
	ErrMalformedPose = errors.New("malformed pose")
)

// Class identifies a terrain class and the world map channel it accumulates into
type Class int

const (
	Obstacle Class = iota
	Rock
	Ground
)

// NumClasses is the number of terrain classes (and world map channels)
const NumClasses = 3

// Classes lists every class in channel order
var Classes = [NumClasses]Class{Obstacle, Rock, Ground}

// String returns the class name
func (c Class) String() string {
	switch c {
	case Obstacle:
		return "obstacle"
	case Rock:
		return "rock"
	case Ground:
		return "ground"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Valid reports whether c is one of the known classes
func (c Class) Valid() bool {
	return c >= Obstacle && c <= Ground
}

// Pose is the rover's world position and heading.
// Yaw is in degrees, 0 facing the world +x axis, increasing counter-clockwise.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Validate rejects poses with NaN or infinite components
func (p Pose) Validate() error {
	for _, v := range []float64{p.X, p.Y, p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: (%v, %v, yaw %v)", ErrMalformedPose, p.X, p.Y, p.Yaw)
		}
	}
	return nil
}

// Frame is a row-major RGB image with its origin at the top-left
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame allocates a black frame
func NewFrame(width, height int) *Frame {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, 3*width*height),
	}
}

// FrameFromImage copies any image into a packed RGB frame, dropping alpha
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())

	// Fast path for the decoder's usual output
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*f.Width]
			dst := f.Pix[y*3*f.Width : (y+1)*3*f.Width]
			for x := 0; x < f.Width; x++ {
				dst[3*x+0] = src[4*x+0]
				dst[3*x+1] = src[4*x+1]
				dst[3*x+2] = src[4*x+2]
			}
		}
		return f
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := f.offset(x, y)
			f.Pix[i+0] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
		}
	}
	return f
}

// Validate checks that the pixel buffer matches the declared extent
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("%w: negative extent %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if want := 3 * f.Width * f.Height; len(f.Pix) != want {
		return fmt.Errorf("%w: %dx%d frame needs %d bytes, got %d",
			ErrMalformedFrame, f.Width, f.Height, want, len(f.Pix))
	}
	return nil
}

// Empty reports whether the frame has no pixels
func (f *Frame) Empty() bool {
	return f.Width == 0 || f.Height == 0
}

// RGB returns the pixel at column x, row y
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := f.offset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGB sets the pixel at column x, row y
func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	i := f.offset(x, y)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Image converts the frame into an opaque NRGBA image
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := f.offset(x, y)
			j := img.PixOffset(x, y)
			img.Pix[j+0] = f.Pix[i+0]
			img.Pix[j+1] = f.Pix[i+1]
			img.Pix[j+2] = f.Pix[i+2]
			img.Pix[j+3] = 0xff
		}
	}
	return img
}

func (f *Frame) offset(x, y int) int {
	return 3 * (y*f.Width + x)
}

// Mask is a per-pixel binary classification with the same extent as a frame
type Mask struct {
	Width  int
	Height int
	Bits   []uint8
}

// NewMask allocates an all-zero mask
func NewMask(width, height int) *Mask {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]uint8, width*height),
	}
}

// At reports whether the pixel at column x, row y is set
func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x] != 0
}

// Set marks the pixel at column x, row y
func (m *Mask) Set(x, y int) {
	m.Bits[y*m.Width+x] = 1
}

// Count returns the number of set pixels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b != 0 {
			n++
		}
	}
	return n
}

// Nonzero returns the row and column indices of every set pixel in row-major order
func (m *Mask) Nonzero() (rows, cols []int) {
	n := m.Count()
	rows = make([]int, 0, n)
	cols = make([]int, 0, n)
	for i, b := range m.Bits {
		if b == 0 {
			continue
		}
		rows = append(rows, i/m.Width)
		cols = append(cols, i%m.Width)
	}
	return rows, cols
}
