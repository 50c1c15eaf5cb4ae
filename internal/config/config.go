// Package config provides configuration loading for the ijoq binary.
// It reads an optional YAML file, fills in defaults, and applies environment
// overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	Processing struct {
		// Workers bounds how many images are prepared or analyzed at once.
		Workers int `yaml:"workers"`

		// MinCalibrationImages is the smallest control set calibrate accepts.
		MinCalibrationImages int `yaml:"minCalibrationImages"`

		// MaxInputFiles caps how many images a folder scan picks up.
		MaxInputFiles int `yaml:"maxInputFiles"`
	} `yaml:"processing"`

	// Basic holds the defaults used when calibrating in basic mode.
	Basic struct {
		CellsX  int    `yaml:"cellsX"`
		CellsY  int    `yaml:"cellsY"`
		Channel string `yaml:"channel"`
	} `yaml:"basic"`

	Output struct {
		// Dir is the parent directory for Settings_Output and Analysis_Output.
		Dir string `yaml:"dir"`

		// SaveProcessed controls whether binarized images are written.
		SaveProcessed bool `yaml:"saveProcessed"`
	} `yaml:"output"`

	HTTP struct {
		Addr string `yaml:"addr"`

		// MaxBodyMB caps the size of an upload.
		MaxBodyMB int `yaml:"maxBodyMB"`

		// TimeoutSeconds bounds a single analysis request.
		TimeoutSeconds int `yaml:"timeoutSeconds"`
	} `yaml:"http"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.MinCalibrationImages = 3
	cfg.Processing.MaxInputFiles = 99

	cfg.Basic.CellsX = 20
	cfg.Basic.CellsY = 20
	cfg.Basic.Channel = "green"

	cfg.Output.Dir = "."
	cfg.Output.SaveProcessed = true

	cfg.HTTP.Addr = "127.0.0.1:8080"
	cfg.HTTP.MaxBodyMB = 64
	cfg.HTTP.TimeoutSeconds = 120

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Processing.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", c.Processing.Workers)
	}
	if c.Processing.MinCalibrationImages < 1 {
		return fmt.Errorf("minCalibrationImages must be >= 1 (got %d)", c.Processing.MinCalibrationImages)
	}
	if c.Processing.MaxInputFiles < 1 {
		return fmt.Errorf("maxInputFiles must be >= 1 (got %d)", c.Processing.MaxInputFiles)
	}
	if c.HTTP.MaxBodyMB < 1 || c.HTTP.TimeoutSeconds < 1 {
		return fmt.Errorf("http maxBodyMB and timeoutSeconds must be >= 1 (got %d, %d)", c.HTTP.MaxBodyMB, c.HTTP.TimeoutSeconds)
	}
	if c.Basic.CellsX < 0 || c.Basic.CellsY < 0 {
		return fmt.Errorf("basic cell counts must be >= 0 (got %dx%d)", c.Basic.CellsX, c.Basic.CellsY)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
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

func (c *Config) applyEnv() {
	c.Processing.Workers = parseIntOrDefault("IJOQ_WORKERS", c.Processing.Workers)
	c.HTTP.Addr = getEnvOrDefault("IJOQ_HTTP_ADDR", c.HTTP.Addr)
	c.Output.Dir = getEnvOrDefault("IJOQ_OUTPUT_DIR", c.Output.Dir)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}
