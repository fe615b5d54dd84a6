// Package coords converts classified mask pixels between image, rover,
// world and polar coordinate systems.
//
// Rover-centric coordinates put the rover at the bottom-centre of the
// rectified image with x pointing forward and y pointing left. World
// coordinates are integer indices into the square world map.
package coords

import (
	"fmt"
	"math"

	"github.com/menta2k/rover-perception/pkg/types"
)

// Points is a rover-centric point set; X and Y always have equal length
type Points struct {
	X []float64
	Y []float64
}

// Len returns the number of points
func (p Points) Len() int {
	return len(p.X)
}

// Polar is a set of (distance, angle) pairs in rover space.
// Angles are in radians in (-pi, pi].
type Polar struct {
	Dist  []float64
	Angle []float64
}

// Len returns the number of points
func (p Polar) Len() int {
	return len(p.Dist)
}

// Concat appends other after p into a new set
func (p Polar) Concat(other Polar) Polar {
	out := Polar{
		Dist:  make([]float64, 0, p.Len()+other.Len()),
		Angle: make([]float64, 0, p.Len()+other.Len()),
	}
	out.Dist = append(append(out.Dist, p.Dist...), other.Dist...)
	out.Angle = append(append(out.Angle, p.Angle...), other.Angle...)
	return out
}

// RoverCoords converts the set pixels of a mask into rover-centric coordinates.
// Rows are flipped and re-origined at the image bottom, columns are centred
// so that pixels right of centre get negative y.
func RoverCoords(mask *types.Mask) Points {
	rows, cols := mask.Nonzero()
	h := float64(mask.Height)
	halfW := float64(mask.Width) / 2

	pts := Points{
		X: make([]float64, len(rows)),
		Y: make([]float64, len(rows)),
	}
	for i := range rows {
		pts.X[i] = -(float64(rows[i]) - h)
		pts.Y[i] = -(float64(cols[i]) - halfW)
	}
	return pts
}

// ToPolar converts rover-centric points to distance and angle
func ToPolar(pts Points) Polar {
	out := Polar{
		Dist:  make([]float64, pts.Len()),
		Angle: make([]float64, pts.Len()),
	}
	for i := range pts.X {
		x, y := pts.X[i], pts.Y[i]
		out.Dist[i] = math.Sqrt(x*x + y*y)
		out.Angle[i] = math.Atan2(y, x)
	}
	return out
}

// FromPolar converts distance and angle back to rover-centric points
func FromPolar(p Polar) Points {
	pts := Points{
		X: make([]float64, p.Len()),
		Y: make([]float64, p.Len()),
	}
	for i := range p.Dist {
		pts.X[i] = p.Dist[i] * math.Cos(p.Angle[i])
		pts.Y[i] = p.Dist[i] * math.Sin(p.Angle[i])
	}
	return pts
}

// RotatePix rotates points counter-clockwise by yaw degrees
func RotatePix(pts Points, yaw float64) Points {
	rad := yaw * math.Pi / 180
	sin, cos := math.Sincos(rad)

	out := Points{
		X: make([]float64, pts.Len()),
		Y: make([]float64, pts.Len()),
	}
	for i := range pts.X {
		x, y := pts.X[i], pts.Y[i]
		out.X[i] = x*cos - y*sin
		out.Y[i] = x*sin + y*cos
	}
	return out
}

// TranslatePix scales rover pixels into world units then offsets by the rover position.
// Division happens before translation.
func TranslatePix(pts Points, xpos, ypos, scale float64) Points {
	out := Points{
		X: make([]float64, pts.Len()),
		Y: make([]float64, pts.Len()),
	}
	for i := range pts.X {
		out.X[i] = pts.X[i]/scale + xpos
		out.Y[i] = pts.Y[i]/scale + ypos
	}
	return out
}

// PixToWorld rotates by the pose yaw, scales and translates into world units,
// truncates toward zero and clips into [0, worldSize-1]. Points outside the
// map are clamped onto its border, never dropped.
func PixToWorld(pts Points, pose types.Pose, worldSize int, scale float64) (xs, ys []int, err error) {
	if worldSize <= 0 {
		return nil, nil, fmt.Errorf("world size must be positive, got %d", worldSize)
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, nil, fmt.Errorf("invalid world scale %v", scale)
	}
	if pts.Len() != len(pts.Y) {
		return nil, nil, fmt.Errorf("point set has %d x and %d y values", pts.Len(), len(pts.Y))
	}

	rot := RotatePix(pts, pose.Yaw)
	tran := TranslatePix(rot, pose.X, pose.Y, scale)

	xs = make([]int, tran.Len())
	ys = make([]int, tran.Len())
	for i := range tran.X {
		xs[i] = clipIndex(tran.X[i], worldSize)
		ys[i] = clipIndex(tran.Y[i], worldSize)
	}
	return xs, ys, nil
}

// clipIndex truncates v toward zero and clamps it to [0, size-1]
func clipIndex(v float64, size int) int {
	hi := size - 1
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= float64(hi):
		return hi
	}
	return int(v)
}
