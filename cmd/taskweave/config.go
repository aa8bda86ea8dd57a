package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskweave configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskweave/config.yaml
Project-specific overrides can be placed in .taskweave.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("workers.count: %d\n", cfg.Workers.Count)
	fmt.Printf("workers.task_timeout: %s\n", cfg.Workers.TaskTimeout)
	fmt.Printf("gate.min_confidence: %.2f\n", cfg.Gate.MinConfidence)
	fmt.Printf("gate.min_insights: %d\n", cfg.Gate.MinInsights)
	fmt.Printf("assignment.strict: %t\n", cfg.Assignment.Strict)
	fmt.Printf("logging.debug: %t\n", cfg.Logging.Debug)
	fmt.Printf("logging.path: %s\n", cfg.Logging.Path)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "workers.count":
		return strconv.Itoa(cfg.Workers.Count), nil
	case "workers.task_timeout":
		return cfg.Workers.TaskTimeout.String(), nil
	case "gate.min_confidence":
		return strconv.FormatFloat(cfg.Gate.MinConfidence, 'f', 2, 64), nil
	case "gate.min_insights":
		return strconv.Itoa(cfg.Gate.MinInsights), nil
	case "assignment.strict":
		return strconv.FormatBool(cfg.Assignment.Strict), nil
	case "logging.debug":
		return strconv.FormatBool(cfg.Logging.Debug), nil
	case "logging.path":
		return cfg.Logging.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "workers.count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("workers.count must be an integer: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("workers.count must be at least 1")
		}
		cfg.Workers.Count = n
	case "workers.task_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("workers.task_timeout must be a duration like 10m: %w", err)
		}
		cfg.Workers.TaskTimeout = d
	case "gate.min_confidence":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("gate.min_confidence must be a number: %w", err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("gate.min_confidence must be between 0 and 1")
		}
		cfg.Gate.MinConfidence = f
	case "gate.min_insights":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("gate.min_insights must be an integer: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("gate.min_insights must not be negative")
		}
		cfg.Gate.MinInsights = n
	case "assignment.strict":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("assignment.strict must be true or false: %w", err)
		}
		cfg.Assignment.Strict = b
	case "logging.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("logging.debug must be true or false: %w", err)
		}
		cfg.Logging.Debug = b
	case "logging.path":
		cfg.Logging.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
