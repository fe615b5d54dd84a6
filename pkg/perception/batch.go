package perception

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/rover-perception/pkg/types"
)

// Job is one logged frame and the pose recorded with it
type Job struct {
	Name string
	Pose types.Pose
	Load func() (*types.Frame, error)
}

// FrameFunc is called after each frame is committed, in job order
type FrameFunc func(job Job, res *Result) error

// RunBatch processes jobs against one set of sinks. Up to workers frames
// are loaded and analysed concurrently; commits happen one at a time in
// job order so the world map sees the same sequence as a serial run.
func (s *Step) RunBatch(ctx context.Context, jobs []Job, workers int, sinks Sinks, fn FrameFunc) error {
	if err := sinks.validate(); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}
	worldSize := sinks.Map.Size()

	for start := 0; start < len(jobs); start += workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+workers, len(jobs))
		chunk := jobs[start:end]
		results := make([]*Result, len(chunk))

		g, gctx := errgroup.WithContext(ctx)
		for i, job := range chunk {
			i, job := i, job
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				frame, err := job.Load()
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", job.Name, err)
				}
				res, err := s.Analyze(frame, job.Pose, worldSize)
				if err != nil {
					return fmt.Errorf("failed to analyze %s: %w", job.Name, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, res := range results {
			if err := s.Commit(res, sinks); err != nil {
				return fmt.Errorf("failed to commit %s: %w", chunk[i].Name, err)
			}
			if fn != nil {
				if err := fn(chunk[i], res); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
