package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/rover-perception/pkg/perception"
	"github.com/menta2k/rover-perception/pkg/threshold"
	"github.com/menta2k/rover-perception/pkg/warp"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10.0, cfg.Calibration.Scale)
	assert.Equal(t, 200, cfg.World.Size)
}

func TestDefaultPredicatesMatchClassifier(t *testing.T) {
	ground, obstacle, rock := Default().Thresholds.Predicates()
	assert.Equal(t, threshold.Ground, ground)
	assert.Equal(t, threshold.Obstacle, obstacle)
	assert.Equal(t, threshold.Rock, rock)
}

func TestSourceQuad(t *testing.T) {
	q := Default().Calibration.SourceQuad()
	assert.Equal(t, warp.Point{X: 14, Y: 140}, q[0])
	assert.Equal(t, warp.Point{X: 118, Y: 96}, q[3])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold range", func(c *Config) { c.Thresholds.Rock[2] = 300 }},
		{"dst size", func(c *Config) { c.Calibration.DstSize = 0 }},
		{"bottom offset", func(c *Config) { c.Calibration.BottomOffset = -1 }},
		{"scale", func(c *Config) { c.Calibration.Scale = 0 }},
		{"world size", func(c *Config) { c.World.Size = 0 }},
		{"quality", func(c *Config) { c.Output.Quality = 101 }},
		{"vision format", func(c *Config) { c.Output.VisionFormat = "bmp" }},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Calibration.Scale = 12.5
	cfg.Thresholds.Ground = [3]int{150, 150, 150}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.World.Size = 64
	cfg.Output.SaveVision = true
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  size: 50\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.World.Size)
	assert.Equal(t, Default().Calibration, cfg.Calibration)
	assert.Equal(t, Default().Thresholds, cfg.Thresholds)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestDefaultPerceptionConfig(t *testing.T) {
	assert.Equal(t, perception.DefaultConfig(), Default().Perception())
}

func TestGetConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".config", "rover-perception", "config.json"), GetConfigPath())
}
