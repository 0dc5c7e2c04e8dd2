package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hightorque.yaml")
	body := "bus:\n  interface: can1\ncontrol:\n  hz: 200\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.Interface != "can1" {
		t.Errorf("interface = %q, want can1", cfg.Bus.Interface)
	}
	if cfg.Control.Hz != 200 {
		t.Errorf("hz = %d, want 200", cfg.Control.Hz)
	}
	// Untouched fields keep their defaults.
	if cfg.Bus.Bitrate != 1000000 {
		t.Errorf("bitrate = %d, want 1000000", cfg.Bus.Bitrate)
	}
	if cfg.Control.BrakeAcceleration != 30.0 {
		t.Errorf("brake = %v, want 30", cfg.Control.BrakeAcceleration)
	}
	if cfg.Scan.WindowMs != 50 {
		t.Errorf("window = %d, want 50", cfg.Scan.WindowMs)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Bus.Interface != "can0" {
		t.Errorf("interface = %q, want can0", cfg.Bus.Interface)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hightorque.yaml")
	cfg := Default()
	cfg.Bus.Adapter = AdapterSLCAN
	cfg.Bus.Interface = "/dev/ttyACM0"
	cfg.Control.Acceleration = 20.0

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("roundtrip mismatch:\ngot  %+v\nwant %+v", got, cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty interface", func(c *Config) { c.Bus.Interface = "" }, "bus.interface"},
		{"unknown adapter", func(c *Config) { c.Bus.Adapter = "virtual" }, "bus.adapter"},
		{"zero bitrate", func(c *Config) { c.Bus.Bitrate = 0 }, "bus.bitrate"},
		{"hz too low", func(c *Config) { c.Control.Hz = 60 }, "control.hz"},
		{"hz too high", func(c *Config) { c.Control.Hz = 500 }, "control.hz"},
		{"negative brake", func(c *Config) { c.Control.BrakeAcceleration = -1 }, "brake_acceleration"},
		{"scan start zero", func(c *Config) { c.Scan.Start = 0 }, "scan.start"},
		{"scan end before start", func(c *Config) { c.Scan.Start = 10; c.Scan.End = 5 }, "scan.end"},
		{"scan end too big", func(c *Config) { c.Scan.End = 200 }, "scan.end"},
		{"read timeout above window", func(c *Config) { c.Scan.ReadTimeoutMs = 500 }, "read_timeout_ms"},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: Validate() accepted", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}
