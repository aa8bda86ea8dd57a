// Package config handles configuration loading and management for taskweave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskweave.
type Config struct {
	Workers    WorkersConfig    `mapstructure:"workers"`
	Gate       GateConfig       `mapstructure:"gate"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// WorkersConfig holds execution pool settings.
type WorkersConfig struct {
	// Count is the number of concurrent task workers.
	Count int `mapstructure:"count"`
	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// GateConfig holds quality gate thresholds.
type GateConfig struct {
	// MinConfidence is the minimum result confidence to pass the gate.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// MinInsights is the minimum number of insights a result must carry.
	MinInsights int `mapstructure:"min_insights"`
}

// AssignmentConfig holds assignment engine settings.
type AssignmentConfig struct {
	// Strict disables the below-threshold fallback pick.
	Strict bool `mapstructure:"strict"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	// Debug enables the file-based debug log.
	Debug bool `mapstructure:"debug"`
	// Path overrides the default debug log location.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TASKWEAVE_*)
// 2. Project config (.taskweave.yaml in current directory or parent)
// 3. User config (~/.config/taskweave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("workers.count", "TASKWEAVE_WORKERS")
	v.BindEnv("logging.debug", "TASKWEAVE_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Logging.Path = os.ExpandEnv(cfg.Logging.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Logging.Path = os.ExpandEnv(cfg.Logging.Path)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("workers.count", cfg.Workers.Count)
	v.Set("workers.task_timeout", cfg.Workers.TaskTimeout.String())
	v.Set("gate.min_confidence", cfg.Gate.MinConfidence)
	v.Set("gate.min_insights", cfg.Gate.MinInsights)
	v.Set("assignment.strict", cfg.Assignment.Strict)
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("logging.path", cfg.Logging.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.task_timeout", "10m")

	v.SetDefault("gate.min_confidence", 0.70)
	v.SetDefault("gate.min_insights", 2)

	v.SetDefault("assignment.strict", false)

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.path", "")
}

// getUserConfigDir returns the XDG config directory for taskweave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskweave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskweave")
	}
	return filepath.Join(home, ".config", "taskweave")
}

// findProjectConfig searches for .taskweave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskweave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Workers: WorkersConfig{
			Count:       4,
			TaskTimeout: 10 * time.Minute,
		},
		Gate: GateConfig{
			MinConfidence: 0.70,
			MinInsights:   2,
		},
		Assignment: AssignmentConfig{
			Strict: false,
		},
		Logging: LoggingConfig{
			Debug: false,
			Path:  "",
		},
	}
}
