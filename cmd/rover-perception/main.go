package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/rover-perception/internal/config"
	"github.com/menta2k/rover-perception/internal/logging"
	"github.com/menta2k/rover-perception/internal/utils"
	"github.com/menta2k/rover-perception/pkg/perception"
	"github.com/menta2k/rover-perception/pkg/processing"
	"github.com/menta2k/rover-perception/pkg/types"
	"github.com/menta2k/rover-perception/pkg/worldmap"
)

type options struct {
	poses      string
	in         string
	pose       string
	configPath string
	outDir     string
	workers    int
	saveVision bool
	ext        string
	zoom       int
	resume     string
	limit      int
}

func main() {
	var opts options
	var debug bool

	flag.StringVar(&opts.poses, "poses", "", "drive log with frame,x,y,yaw columns (csv, ';' or ',' separated)")
	flag.StringVar(&opts.in, "in", "", "directory of frames to process at a single fixed pose (used when -poses is empty)")
	flag.StringVar(&opts.pose, "pose", "0,0,0", "fixed pose x,y,yaw for -in")
	flag.StringVar(&opts.configPath, "config", "", "config file (json or yaml); when empty, the user config file is used if present")
	flag.StringVar(&opts.outDir, "out", "", "output directory (overrides config)")
	flag.IntVar(&opts.workers, "workers", 0, "frames analysed concurrently (overrides config)")
	flag.BoolVar(&opts.saveVision, "save-vision", false, "write the per-frame vision image")
	flag.StringVar(&opts.ext, "ext", "", "vision image format: png|jpg|webp (overrides config)")
	flag.IntVar(&opts.zoom, "zoom", 1, "integer enlargement of saved vision images")
	flag.StringVar(&opts.resume, "resume", "", "world map file to continue accumulating into")
	flag.IntVar(&opts.limit, "limit", 0, "process at most this many frames, 0=all")
	flag.BoolVar(&debug, "debug", false, "log every frame")

	flag.Parse()
	if opts.poses == "" && opts.in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -poses robot_log.csv | -in frames/ [-pose x,y,yaw] [-config cfg.yaml] [-out outdir] [-workers 4] [-save-vision] [-resume worldmap.yaml]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	logger, err := logging.NewLogger("rover-perception", debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Fatalw("run failed", "error", err)
	}
}

func run(ctx context.Context, opts options, logger *zap.SugaredLogger) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	records, err := loadRecords(opts)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(records) > opts.limit {
		records = records[:opts.limit]
	}
	if len(records) == 0 {
		return errors.New("no frames to process")
	}

	m, err := openMap(opts.resume, cfg.World.Size)
	if err != nil {
		return err
	}

	processor := processing.NewProcessor()
	// All logged frames share the camera resolution, so the first frame sizes the vision buffer
	first, err := processor.LoadFrame(records[0].Frame)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", records[0].Frame, err)
	}
	vision := perception.NewVisionBuffer(first.Width, first.Height)
	nav := &perception.NavState{}
	sinks := perception.Sinks{Map: m, Vision: vision, Nav: nav}

	jobs := make([]perception.Job, len(records))
	for i, rec := range records {
		jobs[i] = perception.Job{
			Name: rec.Frame,
			Pose: rec.Pose,
			Load: func() (*types.Frame, error) { return processor.LoadFrame(rec.Frame) },
		}
	}

	step := perception.New(cfg.Perception(), logger)
	logger.Infow("processing drive log",
		"frames", len(jobs), "workers", cfg.Batch.Workers, "world_size", m.Size(), "scale", cfg.Calibration.Scale)

	done := 0
	err = step.RunBatch(ctx, jobs, cfg.Batch.Workers, sinks, func(job perception.Job, res *perception.Result) error {
		done++
		summary := perception.Summarize(res.Nav)
		logger.Debugw("frame done",
			"frame", filepath.Base(job.Name), "counts", res.Counts(),
			"nav_mean_angle", summary.MeanAngle, "nav_mean_dist", summary.MeanDistance)

		if !cfg.Output.SaveVision {
			return nil
		}
		path := utils.GenerateOutputFilename(job.Name, cfg.Output.OutputDir, "vision_", "", cfg.Output.VisionFormat)
		img := processor.Enlarge(vision.Image(), opts.zoom)
		if err := processor.SaveImage(img, path, cfg.Output.VisionFormat, cfg.Output.Quality, true); err != nil {
			return fmt.Errorf("failed to save vision image: %w", err)
		}
		return nil
	})

	// Whatever was committed before a failure or interrupt is still worth keeping
	mapPath := filepath.Join(cfg.Output.OutputDir, cfg.Output.MapFile)
	if saveErr := m.Save(mapPath); saveErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to save world map: %w", saveErr))
	} else {
		logger.Infow("wrote world map", "path", mapPath, "frames", done)
	}

	for _, s := range m.Stats() {
		logger.Infow("world map channel", "class", s.Class.String(), "cells", s.Touched, "hits", s.Total, "max", s.Max)
	}
	return err
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	path := opts.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}
	if opts.outDir != "" {
		cfg.Output.OutputDir = opts.outDir
	}
	if opts.workers > 0 {
		cfg.Batch.Workers = opts.workers
	}
	if opts.saveVision {
		cfg.Output.SaveVision = true
	}
	if opts.ext != "" {
		cfg.Output.VisionFormat = strings.ToLower(opts.ext)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadRecords(opts options) ([]utils.PoseRecord, error) {
	if opts.poses != "" {
		return utils.LoadPoseLog(opts.poses)
	}

	pose, err := parsePose(opts.pose)
	if err != nil {
		return nil, err
	}
	files, err := utils.ListImageFiles(opts.in)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	records := make([]utils.PoseRecord, len(files))
	for i, f := range files {
		records[i] = utils.PoseRecord{Frame: f, Pose: pose}
	}
	return records, nil
}

func parsePose(s string) (types.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return types.Pose{}, fmt.Errorf("%w: want x,y,yaw, got %q", types.ErrMalformedPose, s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Pose{}, fmt.Errorf("%w: %v", types.ErrMalformedPose, err)
		}
		vals[i] = v
	}
	pose := types.Pose{X: vals[0], Y: vals[1], Yaw: vals[2]}
	return pose, pose.Validate()
}

func openMap(resume string, size int) (*worldmap.Map, error) {
	if resume == "" {
		return worldmap.New(size)
	}
	if !utils.FileExists(resume) {
		return nil, fmt.Errorf("resume map %s does not exist", resume)
	}
	m, err := worldmap.Load(resume)
	if err != nil {
		return nil, fmt.Errorf("failed to resume world map: %w", err)
	}
	if m.Size() != size {
		return nil, fmt.Errorf("resume map is %dx%d, config wants %dx%d", m.Size(), m.Size(), size, size)
	}
	return m, nil
}
