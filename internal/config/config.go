// Package config loads and validates the labelscan configuration from
// files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/multipass"
	"github.com/shoplens/labelscan/internal/preprocess"
)

// Config is the complete configuration for the labelscan application,
// covering the scan and serve commands.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Recognition engine settings
	Engine EngineConfig `mapstructure:"engine" yaml:"engine" json:"engine"`

	// Base preprocessing parameters; the pass variants derive from these
	Preprocess preprocess.Config `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`

	// Live capture constraints
	Capture capture.Constraints `mapstructure:"capture" yaml:"capture" json:"capture"`

	// HTTP server settings (for the serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// CLI output settings
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
}

// EngineConfig contains recognition engine settings.
type EngineConfig struct {
	Language   string `mapstructure:"language" yaml:"language" json:"language"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host" yaml:"host" json:"host"`
	Port               int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin         string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format              string `mapstructure:"format" yaml:"format" json:"format"`
	ConfidencePrecision int    `mapstructure:"confidence_precision" yaml:"confidence_precision" json:"confidence_precision"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Engine: EngineConfig{
			Language:   engine.DefaultLanguage,
			TimeoutSec: int(engine.DefaultTimeout / time.Second),
		},
		Preprocess: preprocess.DefaultConfig(),
		Capture:    capture.DefaultConstraints(),
		Server: ServerConfig{
			Host:               "localhost",
			Port:               8080,
			CORSOrigin:         "*",
			MaxUploadMB:        25,
			TimeoutSec:         120,
			ShutdownTimeoutSec: 10,
		},
		Output: OutputConfig{
			Format:              "text",
			ConfidencePrecision: 1,
		},
	}
}

// Validate validates the configuration and returns the first error
// encountered.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if c.Engine.Language == "" {
		return fmt.Errorf("engine language must not be empty")
	}
	if c.Engine.TimeoutSec <= 0 {
		return fmt.Errorf("invalid engine timeout: %d (must be positive)", c.Engine.TimeoutSec)
	}

	if c.Preprocess.Scale <= 0 {
		return fmt.Errorf("invalid preprocess scale: %.2f (must be positive)", c.Preprocess.Scale)
	}
	if c.Preprocess.Contrast <= 0 {
		return fmt.Errorf("invalid preprocess contrast: %.2f (must be positive)", c.Preprocess.Contrast)
	}
	if c.Preprocess.Brightness <= 0 {
		return fmt.Errorf("invalid preprocess brightness: %.2f (must be positive)", c.Preprocess.Brightness)
	}

	if c.Capture.MinWidth <= 0 || c.Capture.MinHeight <= 0 {
		return fmt.Errorf("invalid capture minimum resolution: %dx%d", c.Capture.MinWidth, c.Capture.MinHeight)
	}
	if c.Capture.IdealWidth < c.Capture.MinWidth || c.Capture.IdealHeight < c.Capture.MinHeight {
		return fmt.Errorf("capture ideal resolution %dx%d below minimum %dx%d",
			c.Capture.IdealWidth, c.Capture.IdealHeight, c.Capture.MinWidth, c.Capture.MinHeight)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid server timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	return nil
}

// ToEngineConfig converts to the engine adapter configuration.
func (c *Config) ToEngineConfig() engine.TesseractConfig {
	return engine.TesseractConfig{
		Language: c.Engine.Language,
		Timeout:  time.Duration(c.Engine.TimeoutSec) * time.Second,
	}
}

// ToMultipassConfig converts to the multi-pass runner configuration,
// deriving the pass sequence from the base preprocess settings.
func (c *Config) ToMultipassConfig() multipass.Config {
	return multipass.Config{
		Language: c.Engine.Language,
		Passes:   preprocess.PassesFrom(c.Preprocess),
	}
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
