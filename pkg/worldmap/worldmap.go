// Package worldmap holds the persistent per-class evidence grid.
package worldmap

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/menta2k/rover-perception/pkg/types"
)

var (
	// ErrLengthMismatch is returned when x and y index sequences differ in length
	ErrLengthMismatch = errors.New("index sequences differ in length")
	// ErrIndexOutOfRange is returned for an index outside the map
	ErrIndexOutOfRange = errors.New("world index out of range")
	// ErrUnknownClass is returned for a class with no map channel
	ErrUnknownClass = errors.New("unknown class")
)

// MaxSize bounds the side of a map; larger grids would not fit in memory
const MaxSize = 1 << 14

// Map is a square grid with one counter per class per cell.
// Counters only ever increase and saturate at math.MaxUint32.
// Accumulate is safe for concurrent use; readers see whole-call updates.
type Map struct {
	mu   sync.RWMutex
	size int
	// cells is row-major [y][x][class]
	cells []uint32
}

// New creates an empty map of size x size cells
func New(size int) (*Map, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("world map size must be between 1 and %d, got %d", MaxSize, size)
	}
	return &Map{
		size:  size,
		cells: make([]uint32, size*size*types.NumClasses),
	}, nil
}

// Size returns the width (and height) of the map
func (m *Map) Size() int {
	return m.size
}

// Accumulate adds one to the class channel at (xs[i], ys[i]) for every i.
// Repeated indices each contribute. Inputs are validated before any cell
// is touched, so a rejected call leaves the map unchanged.
func (m *Map) Accumulate(class types.Class, xs, ys []int) error {
	if !class.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownClass, int(class))
	}
	if len(xs) != len(ys) {
		return fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(xs), len(ys))
	}
	for i := range xs {
		if xs[i] < 0 || xs[i] >= m.size || ys[i] < 0 || ys[i] >= m.size {
			return fmt.Errorf("%w: (%d, %d) in %dx%d map", ErrIndexOutOfRange, xs[i], ys[i], m.size, m.size)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range xs {
		j := m.offset(xs[i], ys[i], class)
		if m.cells[j] != math.MaxUint32 {
			m.cells[j]++
		}
	}
	return nil
}

// At returns the counter for class at column x, row y
func (m *Map) At(x, y int, class types.Class) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cells[m.offset(x, y, class)]
}

// Channel returns a row-major copy of one class channel
func (m *Map) Channel(class types.Class) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint32, m.size*m.size)
	for i := range out {
		out[i] = m.cells[i*types.NumClasses+int(class)]
	}
	return out
}

// Snapshot returns a copy of every counter in [y][x][class] order
func (m *Map) Snapshot() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint32, len(m.cells))
	copy(out, m.cells)
	return out
}

// ChannelStats summarises one class channel
type ChannelStats struct {
	Class   types.Class `json:"class"`
	Touched int         `json:"touched"`
	Total   uint64      `json:"total"`
	Max     uint32      `json:"max"`
}

// Stats summarises every channel
func (m *Map) Stats() [types.NumClasses]ChannelStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [types.NumClasses]ChannelStats
	for _, c := range types.Classes {
		out[c].Class = c
	}
	for i, v := range m.cells {
		if v == 0 {
			continue
		}
		s := &out[i%types.NumClasses]
		s.Touched++
		s.Total += uint64(v)
		if v > s.Max {
			s.Max = v
		}
	}
	return out
}

func (m *Map) offset(x, y int, class types.Class) int {
	return (y*m.size+x)*types.NumClasses + int(class)
}
