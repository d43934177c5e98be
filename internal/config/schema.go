// Package config provides configuration management for lockable resources.
package config

import "time"

// Config is the root configuration.
type Config struct {
	// Resources is the configured resource set, in declaration order.
	Resources []ResourceConfig `mapstructure:"resources" json:"resources" yaml:"resources" toml:"resources"`
	// State configures where live state is persisted.
	State StateConfig `mapstructure:"state" json:"state" yaml:"state" toml:"state"`
	// Output configures CLI output and logging.
	Output OutputConfig `mapstructure:"output" json:"output" yaml:"output" toml:"output"`
	// Resilience configures retries and circuit breaking around recycling.
	Resilience ResilienceConfig `mapstructure:"resilience" json:"resilience" yaml:"resilience" toml:"resilience"`
	// Telemetry configures metrics and tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry" yaml:"telemetry" toml:"telemetry"`
}

// ResourceConfig declares one resource. Only the descriptor is
// configurable; ownership, queue claims and notes are live state.
type ResourceConfig struct {
	// Name is the unique identity of the resource.
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name"`
	// Description is free text shown to users.
	Description string `mapstructure:"description" json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	// Labels is a whitespace separated list of label tokens.
	Labels string `mapstructure:"labels" json:"labels,omitempty" yaml:"labels,omitempty" toml:"labels,omitempty"`
}

// StateConfig configures the state repository.
type StateConfig struct {
	// Path is the JSON state file.
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
	// LockTimeout is how long a run waits for another run to release the state.
	LockTimeout time.Duration `mapstructure:"lock_timeout" json:"lock_timeout" yaml:"lock_timeout" toml:"lock_timeout"`
}

// OutputConfig configures CLI output.
type OutputConfig struct {
	// Format is the output format (table, json, yaml).
	Format string `mapstructure:"format" json:"format" yaml:"format" toml:"format"`
	// Color enables colored output.
	Color bool `mapstructure:"color" json:"color" yaml:"color" toml:"color"`
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level" toml:"log_level"`
	// LogFormat is the log format (text, json).
	LogFormat string `mapstructure:"log_format" json:"log_format" yaml:"log_format" toml:"log_format"`
	// LogFile is the path to a log file.
	LogFile string `mapstructure:"log_file" json:"log_file,omitempty" yaml:"log_file,omitempty" toml:"log_file,omitempty"`
}

// ResilienceConfig configures the recycle retry and circuit breaker.
type ResilienceConfig struct {
	// MaxAttempts is the total number of recycle attempts.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay" yaml:"initial_delay" toml:"initial_delay"`
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay" toml:"max_delay"`
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32 `mapstructure:"failure_threshold" json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold"`
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `mapstructure:"open_timeout" json:"open_timeout" yaml:"open_timeout" toml:"open_timeout"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	// Enabled turns on metrics and tracing.
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	// Exporter selects the exporter (stdout, none).
	Exporter string `mapstructure:"exporter" json:"exporter" yaml:"exporter" toml:"exporter"`
	// ServiceName is reported as the telemetry resource service name.
	ServiceName string `mapstructure:"service_name" json:"service_name" yaml:"service_name" toml:"service_name"`
}

// DefaultConfig returns the default configuration with no resources.
func DefaultConfig() *Config {
	return &Config{
		State: StateConfig{
			Path:        ".lockres/state.json",
			LockTimeout: 30 * time.Second,
		},
		Output: OutputConfig{
			Format:    "table",
			Color:     true,
			LogLevel:  "info",
			LogFormat: "text",
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			InitialDelay:     100 * time.Millisecond,
			MaxDelay:         2 * time.Second,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Exporter:    "none",
			ServiceName: "lockres",
		},
	}
}

// ConfigFileNames to search for.
var ConfigFileNames = []string{
	"lockres",
	".lockres",
}

// ConfigFileExtensions supported by Viper.
var ConfigFileExtensions = []string{
	"yaml",
	"yml",
	"toml",
	"json",
}

// Output formats.
var validOutputFormats = []string{"table", "json", "yaml"}

// Log levels.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Log formats.
var validLogFormats = []string{"text", "json"}

// Telemetry exporters.
var validExporters = []string{"none", "stdout"}
