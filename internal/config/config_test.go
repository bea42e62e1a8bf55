package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.DisconnectTime != 15 {
		t.Errorf("Device.DisconnectTime = %d, want 15", cfg.Device.DisconnectTime)
	}
	if cfg.Device.MaxCommandAttempts != 5 {
		t.Errorf("Device.MaxCommandAttempts = %d, want 5", cfg.Device.MaxCommandAttempts)
	}
	if cfg.Timezone != "Local" {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, "Local")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  address: "AA:BB:CC:DD:EE:FF"
  name: living-room
  disconnect_time: 30
timezone: Europe/Amsterdam
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device.Address = %q, want %q", cfg.Device.Address, "AA:BB:CC:DD:EE:FF")
	}
	if cfg.Device.Name != "living-room" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "living-room")
	}
	if cfg.Device.DisconnectTime != 30 {
		t.Errorf("Device.DisconnectTime = %d, want 30", cfg.Device.DisconnectTime)
	}
	// Omitted field keeps its default.
	if cfg.Device.MaxCommandAttempts != 5 {
		t.Errorf("Device.MaxCommandAttempts = %d, want 5", cfg.Device.MaxCommandAttempts)
	}
	if cfg.Timezone != "Europe/Amsterdam" {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, "Europe/Amsterdam")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Device.Address = "AA:BB:CC:DD:EE:FF"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Device.Address = "" },
			wantErr: "device.address",
		},
		{
			name:    "zero disconnect time",
			mutate:  func(c *Config) { c.Device.DisconnectTime = 0 },
			wantErr: "disconnect_time",
		},
		{
			name:    "zero command attempts",
			mutate:  func(c *Config) { c.Device.MaxCommandAttempts = 0 },
			wantErr: "max_command_attempts",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus_Mons" },
			wantErr: "timezone",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Europe/Amsterdam"
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/Amsterdam" {
		t.Errorf("Location() = %q, want Europe/Amsterdam", loc.String())
	}

	cfg.Timezone = "Local"
	loc, err = cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc != nil && loc.String() == "" {
		t.Error("Location() returned empty location for Local")
	}
}
