// Package config loads and validates sysprog's runtime configuration: UFS
// capacity limits, TPOOL sizing, and the shell's interactive surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the complete sysprog configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SYSPROG_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// UFS controls the in-memory filesystem's capacity limits.
	UFS UFSConfig `mapstructure:"ufs"`

	// TPool controls the worker pool's sizing.
	TPool TPoolConfig `mapstructure:"tpool"`

	// Shell controls the interactive command executor.
	Shell ShellConfig `mapstructure:"shell"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format names a log output format.
	// Valid values: text, json. The value is validated but not applied:
	// internal/logger always writes plain text lines.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output names a log destination: stdout, stderr, or a file path. The
	// value is validated but not applied: internal/logger always writes
	// to stdout.
	Output string `mapstructure:"output" validate:"required"`
}

// UFSConfig controls the in-memory filesystem.
type UFSConfig struct {
	// MaxFileSizeBytes is the hard cap on a single file's total payload.
	MaxFileSizeBytes uint64 `mapstructure:"max_file_size_bytes" validate:"required,gt=0"`

	// DescriptorPoolFloor is the minimum descriptor table capacity; the
	// table never shrinks below this even when mostly empty.
	DescriptorPoolFloor int `mapstructure:"descriptor_pool_floor" validate:"required,gte=1"`
}

// TPoolConfig controls the worker pool.
type TPoolConfig struct {
	// MaxThreads is the cap on lazily-spawned worker goroutines.
	MaxThreads int `mapstructure:"max_threads" validate:"required,gte=1"`

	// MaxTasks is the maximum number of tasks that may be queued at once.
	MaxTasks int `mapstructure:"max_tasks" validate:"required,gte=1"`
}

// ShellConfig controls the interactive executor.
type ShellConfig struct {
	// Prompt is the string printed before reading each command line.
	Prompt string `mapstructure:"prompt" validate:"required"`

	// BackgroundRegistryFloor is the initial/minimum capacity of the
	// background process registry.
	BackgroundRegistryFloor int `mapstructure:"background_registry_floor" validate:"required,gte=1"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to a config file (empty string uses the default
//     location under $XDG_CONFIG_HOME/sysprog).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := decodeSettings(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// decodeSettings decodes viper's merged settings map into cfg directly via
// mapstructure, rather than leaning on viper's own (indirect) decoder. Weakly
// typed input is required here because environment variables always arrive
// as strings but fields like MaxFileSizeBytes are numeric.
func decodeSettings(settings map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(settings)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SYSPROG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AllSettings only reports keys viper already knows about, so bind
	// every config key explicitly for SYSPROG_* variables to be seen
	// even when no config file sets that key.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"ufs.max_file_size_bytes", "ufs.descriptor_pool_floor",
		"tpool.max_threads", "tpool.max_tasks",
		"shell.prompt", "shell.background_registry_floor",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sysprog")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sysprog")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
