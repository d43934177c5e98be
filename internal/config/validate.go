package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates the configuration. Warnings never fail validation;
// read them with Warnings.
func (v *Validator) Validate(cfg *Config) error {
	v.validateResources(cfg.Resources)
	v.validateState(cfg.State)
	v.validateOutput(cfg.Output)
	v.validateResilience(cfg.Resilience)
	v.validateTelemetry(cfg.Telemetry)

	if v.errors.HasErrors() {
		return lrerrors.Validation("config.Validate", v.errors.Error())
	}
	return nil
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.errors.Warnings
}

func (v *Validator) validateResources(resources []ResourceConfig) {
	seen := make(map[string]int, len(resources))
	for i, r := range resources {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			v.errors.Addf("resources[%d].name: must not be blank", i)
			continue
		}
		if name != r.Name {
			v.errors.Warnf("resources[%d].name: surrounding whitespace in %q is ignored", i, r.Name)
		}
		if first, ok := seen[name]; ok {
			v.errors.Addf("resources[%d].name: %q duplicates resources[%d]", i, name, first)
			continue
		}
		seen[name] = i

		labels := strings.Fields(r.Labels)
		for j, label := range labels {
			if slices.Contains(labels[:j], label) {
				v.errors.Warnf("resources[%d].labels: label %q is repeated", i, label)
			}
		}
	}
}

func (v *Validator) validateState(cfg StateConfig) {
	if cfg.Path == "" {
		v.errors.Addf("state.path: must not be empty")
		return
	}
	if cfg.LockTimeout < 0 {
		v.errors.Addf("state.lock_timeout: must not be negative")
	}
	if ext := filepath.Ext(cfg.Path); ext != ".json" {
		v.errors.Warnf("state.path: state is written as JSON, but %q has extension %q", cfg.Path, ext)
	}
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	if !slices.Contains(validOutputFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validOutputFormats, cfg.Format)
	}
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel)
	}
	if !slices.Contains(validLogFormats, cfg.LogFormat) {
		v.errors.Addf("output.log_format: must be one of %v, got %q", validLogFormats, cfg.LogFormat)
	}
}

func (v *Validator) validateResilience(cfg ResilienceConfig) {
	if cfg.MaxAttempts < 1 {
		v.errors.Addf("resilience.max_attempts: must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.OpenTimeout < 0 {
		v.errors.Addf("resilience: delays and timeouts must not be negative")
	}
	if cfg.MaxDelay > 0 && cfg.InitialDelay > cfg.MaxDelay {
		v.errors.Warnf("resilience.initial_delay: %s exceeds max_delay %s", cfg.InitialDelay, cfg.MaxDelay)
	}
	if cfg.FailureThreshold == 0 {
		v.errors.Addf("resilience.failure_threshold: must be at least 1")
	}
}

func (v *Validator) validateTelemetry(cfg TelemetryConfig) {
	if !slices.Contains(validExporters, cfg.Exporter) {
		v.errors.Addf("telemetry.exporter: must be one of %v, got %q", validExporters, cfg.Exporter)
	}
	if cfg.Enabled && cfg.Exporter == "none" {
		v.errors.Warnf("telemetry.enabled: no exporter configured, data is discarded")
	}
}

// Validate validates cfg with a fresh Validator.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
