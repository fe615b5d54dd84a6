// Package warp rectifies camera frames into a top-down view with a projective transform.
package warp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/rover-perception/pkg/types"
)

// ErrDegenerateQuad is returned when four correspondences do not define a homography
var ErrDegenerateQuad = errors.New("degenerate quadrilateral")

// Point is an image-space position in pixels
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Quad is four corners enumerated near-left, near-right, far-right, far-left.
// Source and destination quads must use the same order; a mismatch is not
// detected and produces a well-formed but wrong warp.
type Quad [4]Point

// QuadFromPairs builds a quad from [x, y] pairs
func QuadFromPairs(pairs [4][2]float64) Quad {
	var q Quad
	for i, p := range pairs {
		q[i] = Point{X: p[0], Y: p[1]}
	}
	return q
}

// DestinationQuad returns the bird's-eye square standing for one world grid
// cell directly in front of the rover: 2*dstSize wide, centred on the
// horizontal midline, bottomOffset pixels above the bottom edge.
func DestinationQuad(width, height int, dstSize, bottomOffset float64) Quad {
	w, h := float64(width), float64(height)
	return Quad{
		{X: w/2 - dstSize, Y: h - bottomOffset},
		{X: w/2 + dstSize, Y: h - bottomOffset},
		{X: w/2 + dstSize, Y: h - 2*dstSize - bottomOffset},
		{X: w/2 - dstSize, Y: h - 2*dstSize - bottomOffset},
	}
}

// Homography is a 3x3 projective transform normalised so that h22 = 1
type Homography struct {
	m *mat.Dense
}

// GetPerspectiveTransform computes the homography mapping src[i] onto dst[i].
// The eight unknowns h00..h21 come from two linear equations per point pair:
//
//	x' = (h00 x + h01 y + h02) / (h20 x + h21 y + 1)
//	y' = (h10 x + h11 y + h12) / (h20 x + h21 y + 1)
func GetPerspectiveTransform(src, dst Quad) (*Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)

		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	data := make([]float64, 9)
	for i := 0; i < 8; i++ {
		data[i] = h.AtVec(i)
		if math.IsNaN(data[i]) || math.IsInf(data[i], 0) {
			return nil, ErrDegenerateQuad
		}
	}
	data[8] = 1
	return &Homography{m: mat.NewDense(3, 3, data)}, nil
}

// NewHomography wraps a row-major 3x3 matrix
func NewHomography(rowMajor [9]float64) *Homography {
	return &Homography{m: mat.NewDense(3, 3, rowMajor[:])}
}

// At returns element (i, j) of the matrix
func (h *Homography) At(i, j int) float64 {
	return h.m.At(i, j)
}

// Apply maps a point through the homography.
// A point on the line at infinity maps to NaN.
func (h *Homography) Apply(x, y float64) (float64, float64) {
	m := h.m
	den := m.At(2, 0)*x + m.At(2, 1)*y + m.At(2, 2)
	if den == 0 {
		return math.NaN(), math.NaN()
	}
	px := (m.At(0, 0)*x + m.At(0, 1)*y + m.At(0, 2)) / den
	py := (m.At(1, 0)*x + m.At(1, 1)*y + m.At(1, 2)) / den
	return px, py
}

// Inverse returns the transform mapping destination points back onto the source
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}
	if s := inv.At(2, 2); s != 0 {
		inv.Scale(1/s, &inv)
	}
	return &Homography{m: &inv}, nil
}

// WarpPerspective resamples frame through h into a frame of the same extent.
// Each output pixel is inverse-mapped into the input and bilinearly
// interpolated; neighbours outside the input contribute black.
func WarpPerspective(frame *types.Frame, h *Homography) (*types.Frame, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	out := types.NewFrame(frame.Width, frame.Height)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			r, g, b := sampleBilinear(frame, sx, sy)
			out.SetRGB(x, y, r, g, b)
		}
	}
	return out, nil
}

// Perspective computes the src->dst transform and warps the frame through it
func Perspective(frame *types.Frame, src, dst Quad) (*types.Frame, error) {
	h, err := GetPerspectiveTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to compute perspective transform: %w", err)
	}
	return WarpPerspective(frame, h)
}

func sampleBilinear(frame *types.Frame, sx, sy float64) (uint8, uint8, uint8) {
	if math.IsNaN(sx) || math.IsNaN(sy) {
		return 0, 0, 0
	}
	fx0, fy0 := math.Floor(sx), math.Floor(sy)
	// Entirely outside, including the one-pixel fringe that blends with black
	if fx0 < -1 || fy0 < -1 || fx0 >= float64(frame.Width) || fy0 >= float64(frame.Height) {
		return 0, 0, 0
	}
	x0, y0 := int(fx0), int(fy0)
	ax, ay := sx-fx0, sy-fy0

	var acc [3]float64
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	offsets := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for k, off := range offsets {
		px, py := x0+off[0], y0+off[1]
		if weights[k] == 0 || px < 0 || py < 0 || px >= frame.Width || py >= frame.Height {
			continue
		}
		r, g, b := frame.RGB(px, py)
		acc[0] += weights[k] * float64(r)
		acc[1] += weights[k] * float64(g)
		acc[2] += weights[k] * float64(b)
	}
	return toByte(acc[0]), toByte(acc[1]), toByte(acc[2])
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
