// Package config provides configuration loading and management for
// foct2nifti. It handles loading configuration from YAML files and
// provides default values for every pipeline knob.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
// The many tunable knobs of the pipeline live here and are passed into
// each component as explicit values, never read from ambient state.
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the number of files processed concurrently
		Workers int `yaml:"workers"`

		// ReverseDepth canonicalizes scan orientation by reversing
		// the slice order after decoding
		ReverseDepth bool `yaml:"reverseDepth"`

		// VoxelSize is the physical voxel size in mm, written into the
		// NIfTI header
		VoxelSize struct {
			X float64 `yaml:"x"`
			Y float64 `yaml:"y"`
			Z float64 `yaml:"z"`
		} `yaml:"voxelSize"`
	} `yaml:"processing"`

	// Contrast enhancement parameters
	Enhancement struct {
		// Method selects the gray-level remapping strategy:
		// peakshift, stretch or blended
		Method string `yaml:"method"`

		// LowPercentile / HighPercentile bound the stretch method
		LowPercentile  float64 `yaml:"lowPercentile"`
		HighPercentile float64 `yaml:"highPercentile"`
	} `yaml:"enhancement"`

	// Histogram matching parameters
	Matching struct {
		// SampleCount is the number of reference images sampled for
		// the target histogram
		SampleCount int `yaml:"sampleCount"`

		// Seed drives the reproducible corpus sampling
		Seed int64 `yaml:"seed"`

		// MinStdDev rejects near-uniform reference images
		MinStdDev float64 `yaml:"minStdDev"`

		// SmoothSigma is the Gaussian sigma for histogram smoothing,
		// applied to both the aggregate target and per-slice targets
		SmoothSigma float64 `yaml:"smoothSigma"`

		// JumpThreshold and JumpAlpha control the mapping-table jump
		// damping
		JumpThreshold int     `yaml:"jumpThreshold"`
		JumpAlpha     float64 `yaml:"jumpAlpha"`

		// SmoothWindow is the final moving-average window over the
		// mapping table; zero disables it
		SmoothWindow int `yaml:"smoothWindow"`

		// RestoreMonotonicity re-clamps the table after the final
		// smoothing pass
		RestoreMonotonicity bool `yaml:"restoreMonotonicity"`
	} `yaml:"matching"`

	// Post-processing parameters
	Post struct {
		// MedianFilter enables the per-slice 3x3 median filter
		MedianFilter bool `yaml:"medianFilter"`

		// InterSliceBlend enables the 1-2-1 depth-axis blend
		InterSliceBlend bool `yaml:"interSliceBlend"`
	} `yaml:"post"`

	// Output parameters
	Output struct {
		// Compress writes .nii.gz instead of .nii
		Compress bool `yaml:"compress"`

		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.ReverseDepth = true
	cfg.Processing.VoxelSize.X = 1.0
	cfg.Processing.VoxelSize.Y = 1.0
	cfg.Processing.VoxelSize.Z = 1.0

	cfg.Enhancement.Method = "peakshift"
	cfg.Enhancement.LowPercentile = 0.02
	cfg.Enhancement.HighPercentile = 0.98

	cfg.Matching.SampleCount = 100
	cfg.Matching.Seed = 42
	cfg.Matching.MinStdDev = 2.0
	cfg.Matching.SmoothSigma = 2.0
	cfg.Matching.JumpThreshold = 10
	cfg.Matching.JumpAlpha = 0.7
	cfg.Matching.SmoothWindow = 5
	cfg.Matching.RestoreMonotonicity = false

	cfg.Post.MedianFilter = true
	cfg.Post.InterSliceBlend = true

	cfg.Output.Compress = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
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

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
