// Package threshold classifies rectified frames into per-class binary masks.
package threshold

import (
	"fmt"

	"github.com/menta2k/rover-perception/pkg/types"
)

// Op is a strict per-channel comparison
type Op int

const (
	// Above matches channel values strictly greater than the cutoff
	Above Op = iota
	// Below matches channel values strictly less than the cutoff
	Below
)

// Cmp compares one color channel against a cutoff
type Cmp struct {
	Op    Op    `json:"op" yaml:"op"`
	Value uint8 `json:"value" yaml:"value"`
}

// Match reports whether v satisfies the comparison
func (c Cmp) Match(v uint8) bool {
	if c.Op == Below {
		return v < c.Value
	}
	return v > c.Value
}

func (c Cmp) String() string {
	if c.Op == Below {
		return fmt.Sprintf("<%d", c.Value)
	}
	return fmt.Sprintf(">%d", c.Value)
}

// Predicate holds one comparison per channel; all three must hold
type Predicate struct {
	R Cmp `json:"r" yaml:"r"`
	G Cmp `json:"g" yaml:"g"`
	B Cmp `json:"b" yaml:"b"`
}

// Match reports whether a pixel satisfies every channel comparison
func (p Predicate) Match(r, g, b uint8) bool {
	return p.R.Match(r) && p.G.Match(g) && p.B.Match(b)
}

func (p Predicate) String() string {
	return fmt.Sprintf("R%s G%s B%s", p.R, p.G, p.B)
}

// AboveAll builds a predicate matching pixels brighter than all three cutoffs
func AboveAll(r, g, b uint8) Predicate {
	return Predicate{R: Cmp{Above, r}, G: Cmp{Above, g}, B: Cmp{Above, b}}
}

// BelowAll builds a predicate matching pixels darker than all three cutoffs
func BelowAll(r, g, b uint8) Predicate {
	return Predicate{R: Cmp{Below, r}, G: Cmp{Below, g}, B: Cmp{Below, b}}
}

// Default predicates for the simulator's terrain palette
var (
	Ground   = AboveAll(160, 160, 140)
	Obstacle = BelowAll(110, 110, 130)
	Rock     = Predicate{R: Cmp{Above, 100}, G: Cmp{Above, 100}, B: Cmp{Below, 60}}
)

// Apply evaluates the predicate for every pixel of the frame
func Apply(frame *types.Frame, p Predicate) *types.Mask {
	if frame == nil {
		return types.NewMask(0, 0)
	}
	mask := types.NewMask(frame.Width, frame.Height)
	for i := range mask.Bits {
		px := frame.Pix[3*i : 3*i+3]
		if p.Match(px[0], px[1], px[2]) {
			mask.Bits[i] = 1
		}
	}
	return mask
}

// ColorThresh selects pixels above all three RGB cutoffs.
// 160 on every channel separates ground from everything else reasonably well.
func ColorThresh(frame *types.Frame, r, g, b uint8) *types.Mask {
	return Apply(frame, AboveAll(r, g, b))
}

// Masks holds one mask per class
type Masks [types.NumClasses]*types.Mask

// Get returns the mask for a class
func (m Masks) Get(c types.Class) *types.Mask {
	return m[c]
}

// Classifier evaluates the three class predicates independently.
// A pixel may satisfy more than one predicate; no priority is applied.
type Classifier struct {
	predicates [types.NumClasses]Predicate
}

// New creates a classifier with the default predicates
func New() *Classifier {
	return NewWithPredicates(Ground, Obstacle, Rock)
}

// NewWithPredicates creates a classifier with custom predicates
func NewWithPredicates(ground, obstacle, rock Predicate) *Classifier {
	c := &Classifier{}
	c.predicates[types.Ground] = ground
	c.predicates[types.Obstacle] = obstacle
	c.predicates[types.Rock] = rock
	return c
}

// Predicate returns the predicate used for a class
func (c *Classifier) Predicate(class types.Class) Predicate {
	return c.predicates[class]
}

// Classify produces the ground, obstacle and rock masks for a frame
func (c *Classifier) Classify(frame *types.Frame) Masks {
	var out Masks
	for _, class := range types.Classes {
		out[class] = Apply(frame, c.predicates[class])
	}
	return out
}
