package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// Pre-compiled regex patterns for environment variable expansion.
var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// EnvPrefix is the prefix for environment overrides, e.g. LOCKRES_OUTPUT_FORMAT.
const EnvPrefix = "LOCKRES"

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, lrerrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, lrerrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	l.expandEnvVars(cfg)

	return cfg, nil
}

// setDefaults sets default values using Viper.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("state.path", defaults.State.Path)
	l.v.SetDefault("state.lock_timeout", defaults.State.LockTimeout)

	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.color", defaults.Output.Color)
	l.v.SetDefault("output.log_level", defaults.Output.LogLevel)
	l.v.SetDefault("output.log_format", defaults.Output.LogFormat)
	l.v.SetDefault("output.log_file", defaults.Output.LogFile)

	l.v.SetDefault("resilience.max_attempts", defaults.Resilience.MaxAttempts)
	l.v.SetDefault("resilience.initial_delay", defaults.Resilience.InitialDelay)
	l.v.SetDefault("resilience.max_delay", defaults.Resilience.MaxDelay)
	l.v.SetDefault("resilience.failure_threshold", defaults.Resilience.FailureThreshold)
	l.v.SetDefault("resilience.open_timeout", defaults.Resilience.OpenTimeout)

	l.v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	l.v.SetDefault("telemetry.exporter", defaults.Telemetry.Exporter)
	l.v.SetDefault("telemetry.service_name", defaults.Telemetry.ServiceName)
}

// loadConfigFile loads the configuration file. A missing file is not an
// error; defaults apply.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	configFile, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		return nil
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFile, err)
	}
	return nil
}

// expandEnvVars expands environment variables in path-like fields.
func (l *Loader) expandEnvVars(cfg *Config) {
	cfg.State.Path = expandEnvVar(cfg.State.Path)
	cfg.Output.LogFile = expandEnvVar(cfg.Output.LogFile)
}

// expandEnvVar expands environment variables in a string.
// Supports both ${VAR} and $VAR syntax.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		varName := submatch[1]
		defaultValue := ""
		if len(submatch) > 2 {
			defaultValue = submatch[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})

	result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := os.Getenv(match[1:]); value != "" {
			return value
		}
		return match
	})

	return result
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// WriteConfig writes cfg to path. The encoding follows the file extension:
// .toml, .yaml/.yml or .json.
func WriteConfig(cfg *Config, path string) error {
	const op = "config.WriteConfig"

	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		data, err = toml.Marshal(cfg)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return lrerrors.Config(op, fmt.Sprintf("unsupported config file extension %q", ext))
	}
	if err != nil {
		return lrerrors.ConfigWrap(err, op, "failed to encode config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return lrerrors.IOWrap(err, op, "failed to create config directory")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return lrerrors.IOWrap(err, op, "failed to write config file")
	}
	return nil
}

// WriteDefaultConfig writes a starter configuration with a sample resource.
func WriteDefaultConfig(path string) error {
	cfg := DefaultConfig()
	cfg.Resources = []ResourceConfig{
		{Name: "example-1", Description: "Example resource", Labels: "example"},
	}
	return WriteConfig(cfg, path)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", lrerrors.NotFound("config.FindConfigFile", "no config file found")
}

// ConfigExists returns true if a config file exists in the given directory.
func ConfigExists(dir string) bool {
	_, err := FindConfigFile(dir)
	return err == nil
}
