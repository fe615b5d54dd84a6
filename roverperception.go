// Package roverperception turns rover camera frames into a top-down map of
// the terrain the rover has driven past.
//
// Each frame goes through a fixed chain: perspective rectification onto a
// ground-plane grid, colour thresholding into ground, obstacle and rock
// masks, conversion to rover-centric and then world coordinates, and
// accumulation into a per-class world map. The navigable and rock pixels
// are also published as polar sets for steering.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		roverperception "github.com/menta2k/rover-perception"
//		"github.com/menta2k/rover-perception/pkg/types"
//	)
//
//	func main() {
//		rover, err := roverperception.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pose := types.Pose{X: 99.7, Y: 85.6, Yaw: 56.8}
//		res, err := rover.ProcessFile("robocam_0001.jpg", pose)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("ground/obstacle/rock pixels: %v\n", res.Counts())
//
//		if err := rover.SaveMap("worldmap.yaml"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Threshold (pkg/threshold): per-pixel colour classification
//  2. Warp (pkg/warp): homography estimation and perspective warping
//  3. Coords (pkg/coords): rover, world and polar coordinate transforms
//  4. Worldmap (pkg/worldmap): the saturating per-class hit counter grid
//  5. Perception (pkg/perception): the per-frame step and batch runner
package roverperception

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/rover-perception/internal/logging"
	"github.com/menta2k/rover-perception/pkg/perception"
	"github.com/menta2k/rover-perception/pkg/processing"
	"github.com/menta2k/rover-perception/pkg/types"
	"github.com/menta2k/rover-perception/pkg/worldmap"
)

// Version of the rover perception library
const Version = "1.0.0"

// DefaultWorldSize is the side of the default world map in cells
const DefaultWorldSize = 200

// Rover owns a perception step and the sinks it writes: the world map,
// the vision image and the navigation state
type Rover struct {
	mu        sync.Mutex
	step      *perception.Step
	processor *processing.Processor
	worldMap  *worldmap.Map
	vision    *perception.VisionBuffer
	nav       *perception.NavState
	logger    *zap.SugaredLogger
}

// New creates a Rover with the default calibration and a 200x200 world map
func New() (*Rover, error) {
	return NewWithConfig(perception.DefaultConfig(), DefaultWorldSize, nil)
}

// NewWithConfig creates a Rover with custom calibration and world size.
// A nil logger discards output.
func NewWithConfig(config perception.Config, worldSize int, logger *zap.SugaredLogger) (*Rover, error) {
	m, err := worldmap.New(worldSize)
	if err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	return &Rover{
		step:      perception.New(config, logger),
		processor: processing.NewProcessor(),
		worldMap:  m,
		nav:       &perception.NavState{},
		logger:    logger,
	}, nil
}

// LoadFrame loads a camera frame from file
func (r *Rover) LoadFrame(path string) (*types.Frame, error) {
	return r.processor.LoadFrame(path)
}

// ProcessFrame runs the perception step for one frame captured at pose
func (r *Rover) ProcessFrame(frame *types.Frame, pose types.Pose) (*perception.Result, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step.Run(frame, perception.StaticPose(pose), r.sinksFor(frame))
}

// ProcessFile is a convenience function that loads a frame and processes it
func (r *Rover) ProcessFile(path string, pose types.Pose) (*perception.Result, error) {
	frame, err := r.LoadFrame(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load frame: %w", err)
	}
	return r.ProcessFrame(frame, pose)
}

// sinksFor returns the sinks for a frame, sizing the vision buffer to it.
// Rectification keeps the frame extent, so the buffer matches the masks.
func (r *Rover) sinksFor(frame *types.Frame) perception.Sinks {
	if r.vision == nil {
		r.vision = perception.NewVisionBuffer(frame.Width, frame.Height)
	} else if w, h := r.vision.Size(); w != frame.Width || h != frame.Height {
		r.vision = perception.NewVisionBuffer(frame.Width, frame.Height)
	}
	return perception.Sinks{Map: r.worldMap, Vision: r.vision, Nav: r.nav}
}

// Map returns the world map
func (r *Rover) Map() *worldmap.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.worldMap
}

// Vision returns the vision buffer of the last frame, or nil before the first frame
func (r *Rover) Vision() *perception.VisionBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vision
}

// Nav returns the navigation state
func (r *Rover) Nav() *perception.NavState {
	return r.nav
}

// NavSummary summarizes the latest navigable polar set
func (r *Rover) NavSummary() perception.Summary {
	return perception.Summarize(r.nav.Nav())
}

// SaveMap writes the world map to path
func (r *Rover) SaveMap(path string) error {
	return r.Map().Save(path)
}

// LoadMap replaces the world map with one saved earlier, so a run can resume
func (r *Rover) LoadMap(path string) error {
	m, err := worldmap.Load(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.worldMap = m
	r.mu.Unlock()
	r.logger.Infow("resumed world map", "path", path, "size", m.Size())
	return nil
}

// SaveVision writes the last vision image, enlarged by zoom
func (r *Rover) SaveVision(path, format string, quality, zoom int) error {
	v := r.Vision()
	if v == nil {
		return fmt.Errorf("no frame processed yet")
	}
	img := r.processor.Enlarge(v.Image(), zoom)
	return r.processor.SaveImage(img, path, format, quality, true)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
