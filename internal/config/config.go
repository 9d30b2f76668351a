// Package config handles threemf tool configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/flate"

	"github.com/Faultbox/threemf/pkg/threemf"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all tool settings.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Package PackageConfig `yaml:"package"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds document-level defaults.
type ModelConfig struct {
	Unit       string `yaml:"unit"`
	Language   string `yaml:"language"`
	Production bool   `yaml:"production"`
}

// MeshConfig holds mesh ingestion settings.
type MeshConfig struct {
	Deduplicate   bool   `yaml:"deduplicate"`
	ReuseGeometry bool   `yaml:"reuse_geometry"`
	PoolMode      string `yaml:"pool_mode"` // fingerprint or strict
}

// PackageConfig holds archive writing settings.
type PackageConfig struct {
	CompressionLevel int  `yaml:"compression_level"`
	Indent           bool `yaml:"indent"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Unit:     string(threemf.UnitMillimeter),
			Language: "en-US",
		},
		Mesh: MeshConfig{
			Deduplicate:   true,
			ReuseGeometry: true,
			PoolMode:      threemf.PoolFingerprint.String(),
		},
		Package: PackageConfig{
			CompressionLevel: flate.DefaultCompression,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks values that YAML decoding cannot.
func (c *Config) Validate() error {
	if _, err := threemf.ParseUnit(c.Model.Unit); err != nil {
		return fmt.Errorf("%w: model.unit: %v", ErrInvalidConfig, err)
	}
	if _, err := threemf.ParsePoolMode(c.Mesh.PoolMode); err != nil {
		return fmt.Errorf("%w: mesh.pool_mode: %v", ErrInvalidConfig, err)
	}
	if l := c.Package.CompressionLevel; l < flate.HuffmanOnly || l > flate.BestCompression {
		return fmt.Errorf("%w: package.compression_level %d", ErrInvalidConfig, l)
	}
	return nil
}

// ModelOptions returns the threemf.New options selected by the config.
func (c *Config) ModelOptions() []threemf.Option {
	mode, err := threemf.ParsePoolMode(c.Mesh.PoolMode)
	if err != nil {
		mode = threemf.PoolFingerprint
	}
	return []threemf.Option{threemf.WithPoolMode(mode)}
}

// OptimizeOptions returns the mesh ingestion settings.
func (c *Config) OptimizeOptions() threemf.OptimizeOptions {
	return threemf.OptimizeOptions{
		Deduplicate:   c.Mesh.Deduplicate,
		ReuseGeometry: c.Mesh.ReuseGeometry,
	}
}

// WriteOptions returns the package writing settings.
func (c *Config) WriteOptions() threemf.WriteOptions {
	return threemf.WriteOptions{
		CompressionLevel: c.Package.CompressionLevel,
		Indent:           c.Package.Indent,
	}
}
