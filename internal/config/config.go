package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/rover-perception/pkg/perception"
	"github.com/menta2k/rover-perception/pkg/threshold"
	"github.com/menta2k/rover-perception/pkg/warp"
)

// Config holds the application configuration
type Config struct {
	Thresholds  ThresholdConfig   `json:"thresholds" yaml:"thresholds"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
	World       WorldConfig       `json:"world" yaml:"world"`
	Output      OutputConfig      `json:"output" yaml:"output"`
	Batch       BatchConfig       `json:"batch" yaml:"batch"`
}

// ThresholdConfig holds the RGB cutoffs of each class.
// Ground matches strictly above all three, obstacle strictly below all
// three, rock strictly above on red and green and strictly below on blue.
type ThresholdConfig struct {
	Ground   [3]int `json:"ground" yaml:"ground"`
	Obstacle [3]int `json:"obstacle" yaml:"obstacle"`
	Rock     [3]int `json:"rock" yaml:"rock"`
}

// CalibrationConfig holds the perspective and scale constants
type CalibrationConfig struct {
	// Source is the calibration grid cell in camera pixels,
	// near-left, near-right, far-right, far-left
	Source       [4][2]float64 `json:"source" yaml:"source"`
	DstSize      float64       `json:"dst_size" yaml:"dst_size"`
	BottomOffset float64       `json:"bottom_offset" yaml:"bottom_offset"`
	// Scale is rectified pixels per world map cell
	Scale float64 `json:"scale" yaml:"scale"`
}

// WorldConfig holds the world map extent
type WorldConfig struct {
	Size int `json:"size" yaml:"size"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir    string `json:"output_dir" yaml:"output_dir"`
	VisionFormat string `json:"vision_format" yaml:"vision_format"`
	Quality      int    `json:"quality" yaml:"quality"`
	SaveVision   bool   `json:"save_vision" yaml:"save_vision"`
	MapFile      string `json:"map_file" yaml:"map_file"`
}

// BatchConfig holds configuration for offline processing of logged frames
type BatchConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Thresholds: ThresholdConfig{
			Ground:   [3]int{160, 160, 140},
			Obstacle: [3]int{110, 110, 130},
			Rock:     [3]int{100, 100, 60},
		},
		Calibration: CalibrationConfig{
			Source:       [4][2]float64{{14, 140}, {301, 140}, {200, 96}, {118, 96}},
			DstSize:      5,
			BottomOffset: 6,
			Scale:        10,
		},
		World: WorldConfig{
			Size: 200,
		},
		Output: OutputConfig{
			OutputDir:    "./output",
			VisionFormat: "png",
			Quality:      90,
			SaveVision:   false,
			MapFile:      "worldmap.yaml",
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Fields missing from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for name, cut := range map[string][3]int{
		"ground":   c.Thresholds.Ground,
		"obstacle": c.Thresholds.Obstacle,
		"rock":     c.Thresholds.Rock,
	} {
		for _, v := range cut {
			if v < 0 || v > 255 {
				return fmt.Errorf("thresholds.%s cutoffs must be between 0 and 255", name)
			}
		}
	}

	if c.Calibration.DstSize <= 0 {
		return fmt.Errorf("calibration.dst_size must be positive")
	}

	if c.Calibration.BottomOffset < 0 {
		return fmt.Errorf("calibration.bottom_offset cannot be negative")
	}

	if c.Calibration.Scale <= 0 {
		return fmt.Errorf("calibration.scale must be positive")
	}

	if c.World.Size < 1 {
		return fmt.Errorf("world.size must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.VisionFormat) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.vision_format must be png, jpg or webp")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}

	return nil
}

// Predicates builds the ground, obstacle and rock predicates
func (t ThresholdConfig) Predicates() (ground, obstacle, rock threshold.Predicate) {
	ground = threshold.AboveAll(uint8(t.Ground[0]), uint8(t.Ground[1]), uint8(t.Ground[2]))
	obstacle = threshold.BelowAll(uint8(t.Obstacle[0]), uint8(t.Obstacle[1]), uint8(t.Obstacle[2]))
	rock = threshold.Predicate{
		R: threshold.Cmp{Op: threshold.Above, Value: uint8(t.Rock[0])},
		G: threshold.Cmp{Op: threshold.Above, Value: uint8(t.Rock[1])},
		B: threshold.Cmp{Op: threshold.Below, Value: uint8(t.Rock[2])},
	}
	return ground, obstacle, rock
}

// SourceQuad returns the calibration quadrilateral
func (c CalibrationConfig) SourceQuad() warp.Quad {
	return warp.QuadFromPairs(c.Source)
}

// Perception builds the perception step configuration
func (c *Config) Perception() perception.Config {
	ground, obstacle, rock := c.Thresholds.Predicates()
	return perception.Config{
		Ground:       ground,
		Obstacle:     obstacle,
		Rock:         rock,
		Source:       c.Calibration.SourceQuad(),
		DstSize:      c.Calibration.DstSize,
		BottomOffset: c.Calibration.BottomOffset,
		Scale:        c.Calibration.Scale,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "rover-perception", "config.json")
}
