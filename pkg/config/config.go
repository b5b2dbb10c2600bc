// Package config provides configuration loading and management for activitymaps.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"activitymaps/pkg/builder"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/models"
	"activitymaps/pkg/stats"
)

// Shrinkage names accepted by Statistics.Shrink.
const (
	ShrinkNone       = "none"
	ShrinkLedoitWolf = "ledoit-wolf"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the number of parallel workers used to build maps
		Workers int `yaml:"workers"`

		// CacheDense keeps a dense copy of the maps for faster per-map access
		CacheDense bool `yaml:"cacheDense"`
	} `yaml:"processing"`

	// Box describes the voxel grid maps are defined over
	Box struct {
		Ni int `yaml:"ni"`
		Nj int `yaml:"nj"`
		Nk int `yaml:"nk"`

		// Affine is the 4x4 voxel-to-world transform, row by row
		Affine [][]float64 `yaml:"affine"`
	} `yaml:"box"`

	// Columns maps observation table roles to column names
	Columns builder.ColumnNames `yaml:"columns"`

	// Statistics parameters
	Statistics struct {
		// Sigma is the Gaussian smoothing width in voxels, 0 disables smoothing
		Sigma float64 `yaml:"sigma"`

		// Biased selects the 1/n estimators instead of 1/(n-1)
		Biased bool `yaml:"biased"`

		// Iterative computes average and variance in a single pass
		Iterative bool `yaml:"iterative"`

		// Shrink is the covariance shrinkage, "none" or "ledoit-wolf"
		Shrink string `yaml:"shrink"`

		// IgnoreBackground drops the background label from covariances
		IgnoreBackground bool `yaml:"ignoreBackground"`
	} `yaml:"statistics"`

	// Sampling parameters
	Sampling struct {
		// Seed feeds the random source of synthetic collections
		Seed uint64 `yaml:"seed"`
	} `yaml:"sampling"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.CacheDense = false

	// 2mm MNI152 grid
	cfg.Box.Ni, cfg.Box.Nj, cfg.Box.Nk = 91, 109, 91
	cfg.Box.Affine = [][]float64{
		{-2, 0, 0, 90},
		{0, 2, 0, -126},
		{0, 0, 2, -72},
		{0, 0, 0, 1},
	}

	cfg.Columns = builder.DefaultColumns()

	cfg.Statistics.Sigma = 0
	cfg.Statistics.Biased = false
	cfg.Statistics.Iterative = false
	cfg.Statistics.Shrink = ShrinkNone
	cfg.Statistics.IgnoreBackground = true

	cfg.Sampling.Seed = 0

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks value ranges and that the box and affine are usable
func (c *Config) Validate() error {
	if c.Processing.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Processing.Workers)
	}
	if c.Statistics.Sigma < 0 {
		return fmt.Errorf("%w: sigma must not be negative, got %v", ErrInvalid, c.Statistics.Sigma)
	}
	if _, err := c.Shrinkage(); err != nil {
		return err
	}
	if _, err := c.Header(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Shrinkage returns the configured covariance shrinkage
func (c *Config) Shrinkage() (stats.Shrinkage, error) {
	switch c.Statistics.Shrink {
	case "", ShrinkNone:
		return stats.ShrinkNone, nil
	case ShrinkLedoitWolf:
		return stats.ShrinkLedoitWolf, nil
	default:
		return 0, fmt.Errorf("%w: unknown shrinkage %q", ErrInvalid, c.Statistics.Shrink)
	}
}

// Header builds the collection header described by the box section
func (c *Config) Header() (maps.Header, error) {
	affine := models.Identity()
	if len(c.Box.Affine) > 0 {
		a, err := models.AffineFromRows(c.Box.Affine)
		if err != nil {
			return maps.Header{}, err
		}
		affine = a
	}
	box, err := indexing.NewBox(c.Box.Ni, c.Box.Nj, c.Box.Nk)
	if err != nil {
		return maps.Header{}, err
	}
	h, err := maps.NewHeader(box, affine)
	if err != nil {
		return maps.Header{}, err
	}
	if _, err := h.InverseAffine(); err != nil {
		return maps.Header{}, err
	}
	return h, nil
}

// Mode returns the collection memory mode
func (c *Config) Mode() maps.Mode {
	if c.Processing.CacheDense {
		return maps.Cached
	}
	return maps.MemorySaving
}
