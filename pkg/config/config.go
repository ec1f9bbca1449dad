// Package config provides configuration loading and management for grindpeak.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"ndcore/pkg/geometry"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is the number of goroutines sharing each reconstruction pass
		NumWorkers int `yaml:"numWorkers"`

		// FullyConnected selects the 3^N-1 neighbourhood instead of the 2N face neighbours
		FullyConnected bool `yaml:"fullyConnected"`

		// MaxIterations bounds the number of passes; 0 uses the number of pixels plus one
		MaxIterations int `yaml:"maxIterations"`

		// FillHoles runs the dual filter that removes minima instead of maxima
		FillHoles bool `yaml:"fillHoles"`
	} `yaml:"processing"`

	// Geometry applied to loaded images
	Geometry struct {
		// Spacing is the in-plane pixel spacing (x, y) in mm
		Spacing []float64 `yaml:"spacing"`

		// Origin is the physical position of the first pixel
		Origin []float64 `yaml:"origin"`

		// SliceGap is the physical distance between consecutive slices of a stack in mm
		SliceGap float64 `yaml:"sliceGap"`

		// Rounding is the point to index rounding policy: "nearest" or "truncate"
		Rounding string `yaml:"rounding"`
	} `yaml:"geometry"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// SaveSlices writes every output slice as an image for inspection
		SaveSlices bool `yaml:"saveSlices"`

		// SlicesDir is the directory the inspection slices are written to
		SlicesDir string `yaml:"slicesDir"`

		// Format is the image format of written files: "png" or "jpg"
		Format string `yaml:"format"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.FullyConnected = false
	cfg.Processing.MaxIterations = 0

	cfg.Geometry.Spacing = []float64{1, 1}
	cfg.Geometry.Origin = []float64{0, 0}
	cfg.Geometry.SliceGap = 1.0
	cfg.Geometry.Rounding = geometry.RoundNearest.String()

	cfg.Output.Verbose = true
	cfg.Output.SaveSlices = false
	cfg.Output.SlicesDir = "slices"
	cfg.Output.Format = "png"

	return cfg
}

// Validate checks values that would otherwise fail deep inside processing
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 0 {
		return fmt.Errorf("processing.numWorkers must not be negative, got %d", c.Processing.NumWorkers)
	}
	if c.Processing.MaxIterations < 0 {
		return fmt.Errorf("processing.maxIterations must not be negative, got %d", c.Processing.MaxIterations)
	}
	for i, s := range c.Geometry.Spacing {
		if s <= 0 {
			return fmt.Errorf("geometry.spacing[%d] must be positive, got %g", i, s)
		}
	}
	if c.Geometry.SliceGap <= 0 {
		return fmt.Errorf("geometry.sliceGap must be positive, got %g", c.Geometry.SliceGap)
	}
	if _, err := geometry.ParseRoundingPolicy(c.Geometry.Rounding); err != nil {
		return fmt.Errorf("geometry.rounding: %w", err)
	}
	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("output.format must be png or jpg, got %q", c.Output.Format)
	}
	return nil
}

// ApplyGeometry sets spacing, origin and rounding policy on g. Axes beyond
// the configured in-plane values keep SliceGap as spacing and 0 as origin.
func (c *Config) ApplyGeometry(g *geometry.Geometry) error {
	policy, err := geometry.ParseRoundingPolicy(c.Geometry.Rounding)
	if err != nil {
		return err
	}

	dim := g.Dimension()
	spacing := make([]float64, dim)
	origin := make([]float64, dim)
	for a := 0; a < dim; a++ {
		spacing[a] = c.Geometry.SliceGap
		if a < len(c.Geometry.Spacing) {
			spacing[a] = c.Geometry.Spacing[a]
		}
		if a < len(c.Geometry.Origin) {
			origin[a] = c.Geometry.Origin[a]
		}
	}

	g.SetSpacing(spacing...)
	g.SetOrigin(origin...)
	g.SetRounding(policy)
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
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
