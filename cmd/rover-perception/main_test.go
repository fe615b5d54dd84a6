package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/rover-perception/internal/config"
	"github.com/menta2k/rover-perception/internal/utils"
	"github.com/menta2k/rover-perception/pkg/types"
	"github.com/menta2k/rover-perception/pkg/worldmap"
)

// TestMain points HOME at an empty directory so a developer's own config
// file is never picked up
func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "rover-home")
	if err != nil {
		panic(err)
	}
	os.Setenv("HOME", home)
	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}

// writeDriveLog writes n ground-coloured frames and a simulator-style log for them
func writeDriveLog(t *testing.T, dir string, n int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "IMG"), 0755))

	img := image.NewNRGBA(image.Rect(0, 0, 320, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.NRGBA{200, 190, 170, 255})
		}
	}

	var sb strings.Builder
	sb.WriteString("Path;SteerAngle;Throttle;Brake;Speed;X_Position;Y_Position;Pitch;Yaw;Roll\n")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("IMG/robocam_%04d.png", i)
		require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
		fmt.Fprintf(&sb, "%s;0;0;0;0;%d;100;0;%d;0\n", name, 100+i, 10*i)
	}
	path := filepath.Join(dir, "robot_log.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func TestRunDriveLog(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	opts := options{
		poses:      writeDriveLog(t, dir, 3),
		outDir:     out,
		workers:    2,
		saveVision: true,
		zoom:       1,
	}

	require.NoError(t, run(context.Background(), opts, zap.NewNop().Sugar()))

	m, err := worldmap.Load(filepath.Join(out, "worldmap.yaml"))
	require.NoError(t, err)
	stats := m.Stats()
	assert.Positive(t, stats[types.Ground].Total)
	assert.Zero(t, stats[types.Rock].Total)

	for i := 0; i < 3; i++ {
		assert.True(t, utils.FileExists(filepath.Join(out, fmt.Sprintf("vision_robocam_%04d.png", i))))
	}

	// Resuming adds the same frames on top of the saved counts
	opts.resume = filepath.Join(out, "worldmap.yaml")
	opts.saveVision = false
	opts.outDir = filepath.Join(dir, "out2")
	require.NoError(t, run(context.Background(), opts, zap.NewNop().Sugar()))

	resumed, err := worldmap.Load(filepath.Join(dir, "out2", "worldmap.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2*stats[types.Ground].Total, resumed.Stats()[types.Ground].Total)
}

func TestRunFixedPoseDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDriveLog(t, dir, 2)

	opts := options{in: filepath.Join(dir, "IMG"), pose: "100,100,0", outDir: filepath.Join(dir, "out"), limit: 1}
	require.NoError(t, run(context.Background(), opts, zap.NewNop().Sugar()))
	assert.True(t, utils.FileExists(filepath.Join(dir, "out", "worldmap.yaml")))
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	err := run(context.Background(), options{in: dir, pose: "0,0,0", outDir: dir}, logger)
	assert.ErrorContains(t, err, "no frames")

	err = run(context.Background(), options{in: dir, pose: "0,0", outDir: dir}, logger)
	assert.ErrorIs(t, err, types.ErrMalformedPose)

	err = run(context.Background(), options{poses: filepath.Join(dir, "missing.csv"), outDir: dir}, logger)
	assert.Error(t, err)

	logPath := writeDriveLog(t, dir, 1)
	err = run(context.Background(), options{poses: logPath, outDir: dir, resume: filepath.Join(dir, "nope.yaml")}, logger)
	assert.ErrorContains(t, err, "does not exist")
}

func TestRunCancelledStillSavesMap(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := options{poses: writeDriveLog(t, dir, 2), outDir: filepath.Join(dir, "out")}
	err := run(ctx, opts, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, utils.FileExists(filepath.Join(dir, "out", "worldmap.yaml")))
}

func TestLoadConfigFallsBackToUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig(options{})
	require.NoError(t, err)
	assert.Equal(t, config.Default().Batch.Workers, cfg.Batch.Workers)

	user := config.Default()
	user.Batch.Workers = 7
	user.World.Size = 150
	require.NoError(t, user.SaveToFile(filepath.Join(home, ".config", "rover-perception", "config.json")))

	cfg, err = loadConfig(options{})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Batch.Workers)
	assert.Equal(t, 150, cfg.World.Size)

	// Flags still override the file, and an explicit -config wins over it
	cfg, err = loadConfig(options{workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Batch.Workers)

	explicit := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, config.Default().SaveToFile(explicit))
	cfg, err = loadConfig(options{configPath: explicit})
	require.NoError(t, err)
	assert.Equal(t, config.Default().World.Size, cfg.World.Size)
}

func TestParsePose(t *testing.T) {
	pose, err := parsePose(" 1.5, -2 ,90")
	require.NoError(t, err)
	assert.Equal(t, types.Pose{X: 1.5, Y: -2, Yaw: 90}, pose)

	_, err = parsePose("1,2,x")
	assert.ErrorIs(t, err, types.ErrMalformedPose)
	_, err = parsePose("1,2,NaN")
	assert.ErrorIs(t, err, types.ErrMalformedPose)
}
