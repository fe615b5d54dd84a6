// Package perception runs the per-frame perception step: rectify, classify,
// transform into rover and world coordinates, accumulate the world map and
// publish polar summaries for navigation.
package perception

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/rover-perception/internal/logging"
	"github.com/menta2k/rover-perception/pkg/coords"
	"github.com/menta2k/rover-perception/pkg/threshold"
	"github.com/menta2k/rover-perception/pkg/types"
	"github.com/menta2k/rover-perception/pkg/warp"
	"github.com/menta2k/rover-perception/pkg/worldmap"
)

// Config holds the tunables of the perception step
type Config struct {
	Ground   threshold.Predicate
	Obstacle threshold.Predicate
	Rock     threshold.Predicate

	// Source is the calibration quad in camera pixels
	Source       warp.Quad
	DstSize      float64
	BottomOffset float64
	// Scale is rectified pixels per world map cell
	Scale float64
}

// DefaultConfig returns the calibration of the simulator camera
func DefaultConfig() Config {
	return Config{
		Ground:       threshold.Ground,
		Obstacle:     threshold.Obstacle,
		Rock:         threshold.Rock,
		Source:       warp.Quad{{X: 14, Y: 140}, {X: 301, Y: 140}, {X: 200, Y: 96}, {X: 118, Y: 96}},
		DstSize:      5,
		BottomOffset: 6,
		Scale:        10,
	}
}

// Step is stateless between frames; all persistent state lives in the sinks
type Step struct {
	config     Config
	classifier *threshold.Classifier
	logger     *zap.SugaredLogger
}

// New creates a perception step; a nil logger discards output
func New(config Config, logger *zap.SugaredLogger) *Step {
	return &Step{
		config:     config,
		classifier: threshold.NewWithPredicates(config.Ground, config.Obstacle, config.Rock),
		logger:     logging.OrNop(logger),
	}
}

// Config returns the step configuration
func (s *Step) Config() Config {
	return s.config
}

// WorldIndices is one class's set of world map indices
type WorldIndices struct {
	X []int
	Y []int
}

// Result holds every intermediate product of one frame
type Result struct {
	Pose      types.Pose
	Rectified *types.Frame
	Masks     threshold.Masks
	Rover     [types.NumClasses]coords.Points
	World     [types.NumClasses]WorldIndices
	// Rock is the rock polar set, Nav is ground followed by rock
	Rock coords.Polar
	Nav  coords.Polar
}

// Counts returns the number of classified pixels per class
func (r *Result) Counts() [types.NumClasses]int {
	var out [types.NumClasses]int
	for _, c := range types.Classes {
		out[c] = r.Rover[c].Len()
	}
	return out
}

// Run processes one frame with the provider's pose and writes every sink.
// Malformed input fails before any sink is written.
func (s *Step) Run(frame *types.Frame, poses PoseProvider, sinks Sinks) (*Result, error) {
	if err := sinks.validate(); err != nil {
		return nil, err
	}
	pose, err := poses.Pose()
	if err != nil {
		return nil, fmt.Errorf("failed to read pose: %w", err)
	}
	res, err := s.Analyze(frame, pose, sinks.Map.Size())
	if err != nil {
		return nil, err
	}
	if err := s.Commit(res, sinks); err != nil {
		return nil, err
	}
	return res, nil
}

// Analyze runs the pure part of the step: rectify, classify and transform.
// It does not touch any sink and is safe to call concurrently.
func (s *Step) Analyze(frame *types.Frame, pose types.Pose, worldSize int) (*Result, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if err := pose.Validate(); err != nil {
		return nil, err
	}

	// Rectify into a bird's-eye view
	dst := warp.DestinationQuad(frame.Width, frame.Height, s.config.DstSize, s.config.BottomOffset)
	warped, err := warp.Perspective(frame, s.config.Source, dst)
	if err != nil {
		return nil, fmt.Errorf("rectification failed: %w", err)
	}

	res := &Result{
		Pose:      pose,
		Rectified: warped,
		Masks:     s.classifier.Classify(warped),
	}

	// Rover space, then world space, for every class
	for _, c := range types.Classes {
		res.Rover[c] = coords.RoverCoords(res.Masks[c])
		xs, ys, err := coords.PixToWorld(res.Rover[c], pose, worldSize, s.config.Scale)
		if err != nil {
			return nil, fmt.Errorf("%s world transform failed: %w", c, err)
		}
		res.World[c] = WorldIndices{X: xs, Y: ys}
	}

	// Rocks count as passable terrain for navigation
	ground := coords.ToPolar(res.Rover[types.Ground])
	res.Rock = coords.ToPolar(res.Rover[types.Rock])
	res.Nav = ground.Concat(res.Rock)

	return res, nil
}

// Commit writes an analysed frame into the vision buffer, the world map and
// the navigation sink, in that order. World indices are checked against the
// map's current size before anything is written. A writer that still fails
// after that check leaves the frame partly committed.
func (s *Step) Commit(res *Result, sinks Sinks) error {
	if err := sinks.validate(); err != nil {
		return err
	}
	size := sinks.Map.Size()
	for _, c := range types.Classes {
		w := res.World[c]
		if len(w.X) != len(w.Y) {
			return fmt.Errorf("%s: %w", c, worldmap.ErrLengthMismatch)
		}
		for i := range w.X {
			if w.X[i] < 0 || w.X[i] >= size || w.Y[i] < 0 || w.Y[i] >= size {
				return fmt.Errorf("%s index (%d, %d) outside %dx%d map: %w",
					c, w.X[i], w.Y[i], size, size, worldmap.ErrIndexOutOfRange)
			}
		}
	}
	for _, c := range types.Classes {
		if err := sinks.Vision.WriteVision(c, res.Masks[c]); err != nil {
			return fmt.Errorf("failed to write %s vision: %w", c, err)
		}
	}
	for _, c := range types.Classes {
		if err := sinks.Map.Accumulate(c, res.World[c].X, res.World[c].Y); err != nil {
			return fmt.Errorf("failed to accumulate %s: %w", c, err)
		}
	}
	sinks.Nav.SetRock(res.Rock)
	sinks.Nav.SetNav(res.Nav)

	counts := res.Counts()
	s.logger.Debugw("frame committed",
		"x", res.Pose.X, "y", res.Pose.Y, "yaw", res.Pose.Yaw,
		"ground", counts[types.Ground],
		"rock", counts[types.Rock],
		"obstacle", counts[types.Obstacle],
	)
	return nil
}
