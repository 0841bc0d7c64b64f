// Package config loads configuration for go-perseus commands.
// Settings come from a YAML file (the same config.yaml the controller
// firmware ships with) and can be overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default connection settings.
const (
	DefaultControllerPort = 9559
	DefaultConnectTimeout = 5 * time.Second
	DefaultLogLevel       = "info"
)

// Config holds the SDK configuration.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Log        LogConfig        `yaml:"log"`
}

// ControllerConfig identifies the robot controller endpoint and the
// command mode this client drives.
type ControllerConfig struct {
	Addr           string        `yaml:"addr"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the config file at path and applies env overrides.
// A missing path yields the defaults (env overrides still apply).
func Load(path string) (*Config, error) {
	cfg := &Config{
		Controller: ControllerConfig{
			Port:           DefaultControllerPort,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if addr := os.Getenv("PERSEUS_ADDR"); addr != "" {
		cfg.Controller.Addr = addr
	}
	if level := os.Getenv("PERSEUS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if cfg.Controller.ConnectTimeout <= 0 {
		cfg.Controller.ConnectTimeout = DefaultConnectTimeout
	}

	return cfg, nil
}

// ControllerURL returns the websocket URL of the robot controller.
func (c *Config) ControllerURL() string {
	return fmt.Sprintf("ws://%s:%d/sdk", c.Controller.Addr, c.Controller.Port)
}
