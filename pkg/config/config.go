// Package config provides configuration loading and management for
// starmeasure. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"starmeasure/pkg/cosmicray"
	"starmeasure/pkg/psffit"
)

// Config bundles the tuning parameters of the measurement algorithms
// loaded from YAML.
type Config struct {
	// CosmicRay holds the cosmic-ray detection and repair parameters.
	CosmicRay cosmicray.Policy `yaml:"cosmic_ray"`

	// Psf holds the spatial PSF fit parameters.
	Psf psffit.Params `yaml:"psf"`

	// Background is the assumed sky level in DN for images that arrive
	// without their background subtracted.
	Background float64 `yaml:"background"`

	// KeepCosmicRays leaves detected cosmic-ray pixel values in place
	// instead of interpolating over them.
	KeepCosmicRays bool `yaml:"keep_cosmic_rays"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		CosmicRay:      cosmicray.DefaultPolicy(),
		Psf:            psffit.DefaultParams(),
		Background:     0,
		KeepCosmicRays: false,
	}
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

	if err := cfg.CosmicRay.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cosmic-ray policy: %w", err)
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
