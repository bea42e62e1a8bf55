package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig `yaml:"device"`
	Timezone string       `yaml:"timezone"` // timestamp timezone, must match the blind's pairing app
	LogLevel string       `yaml:"log_level"`
}

// DeviceConfig holds per-blind settings.
type DeviceConfig struct {
	Address            string `yaml:"address"` // MAC on Linux, CoreBluetooth UUID on macOS
	Name               string `yaml:"name"`
	DisconnectTime     int    `yaml:"disconnect_time"`      // seconds of idle before dropping the link
	MaxCommandAttempts int    `yaml:"max_command_attempts"` // write retries before giving up on the link
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "motionble")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			DisconnectTime:     15,
			MaxCommandAttempts: 5,
		},
		Timezone: "Local",
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}

	if c.Device.DisconnectTime <= 0 {
		return fmt.Errorf("device.disconnect_time must be > 0")
	}

	if c.Device.MaxCommandAttempts <= 0 {
		return fmt.Errorf("device.max_command_attempts must be > 0")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
