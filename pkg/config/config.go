// Package config loads and validates the hightorque.yaml configuration
// file. Every field has a default, so a missing file is a working setup
// (can0, 1 Mbit, 100 Hz) and the CLI flags only override what they name.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultFile = "hightorque.yaml"

// Adapter names accepted in BusConfig.Adapter.
const (
	AdapterSocketCAN = "socketcan"
	AdapterSLCAN     = "slcan"
)

type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Control ControlConfig `yaml:"control"`
	Scan    ScanConfig    `yaml:"scan"`
}

type BusConfig struct {
	Interface string `yaml:"interface"` // socketcan name or serial device
	Adapter   string `yaml:"adapter"`   // socketcan | slcan
	Bitrate   int    `yaml:"bitrate"`
	BaudRate  int    `yaml:"baud_rate,omitempty"` // slcan serial line rate
}

type ControlConfig struct {
	Hz                int     `yaml:"hz"`
	Acceleration      float64 `yaml:"acceleration"`       // rad/s^2 cruise
	BrakeAcceleration float64 `yaml:"brake_acceleration"` // rad/s^2 at zero velocity
	TorqueLimit       float64 `yaml:"torque_limit"`       // Nm
	KP                float64 `yaml:"kp"`
	KD                float64 `yaml:"kd"`
}

type ScanConfig struct {
	Start          int `yaml:"start"`
	End            int `yaml:"end"`
	WindowMs       int `yaml:"window_ms"`
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	ProbeSpacingMs int `yaml:"probe_spacing_ms"`
}

// Window returns the per-id reply window.
func (s ScanConfig) Window() time.Duration {
	return time.Duration(s.WindowMs) * time.Millisecond
}

// ReadTimeout returns the single-read poll timeout inside the window.
func (s ScanConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// ProbeSpacing returns the pause between probes of consecutive ids.
func (s ScanConfig) ProbeSpacing() time.Duration {
	return time.Duration(s.ProbeSpacingMs) * time.Millisecond
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Interface: "can0",
			Adapter:   AdapterSocketCAN,
			Bitrate:   1000000,
			BaudRate:  115200,
		},
		Control: ControlConfig{
			Hz:                100,
			Acceleration:      15.0,
			BrakeAcceleration: 30.0,
			TorqueLimit:       3.0,
			KP:                2.0,
			KD:                0.2,
		},
		Scan: ScanConfig{
			Start:          1,
			End:            20,
			WindowMs:       50,
			ReadTimeoutMs:  10,
			ProbeSpacingMs: 10,
		},
	}
}

// Load reads and validates a configuration file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the given file, falling back to Default when the file
// does not exist. Any other read or parse failure is still an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks configuration correctness. It does not mutate.
func (c *Config) Validate() error {
	if c.Bus.Interface == "" {
		return fmt.Errorf("bus.interface is empty")
	}
	switch c.Bus.Adapter {
	case AdapterSocketCAN, AdapterSLCAN:
	default:
		return fmt.Errorf("bus.adapter %q is not %q or %q",
			c.Bus.Adapter, AdapterSocketCAN, AdapterSLCAN)
	}
	if c.Bus.Bitrate <= 0 {
		return fmt.Errorf("bus.bitrate %d must be positive", c.Bus.Bitrate)
	}
	if c.Bus.Adapter == AdapterSLCAN && c.Bus.BaudRate <= 0 {
		return fmt.Errorf("bus.baud_rate %d must be positive for slcan", c.Bus.BaudRate)
	}

	if c.Control.Hz < 100 || c.Control.Hz > 200 {
		return fmt.Errorf("control.hz %d outside 100..200", c.Control.Hz)
	}
	if c.Control.Acceleration <= 0 {
		return fmt.Errorf("control.acceleration %v must be positive", c.Control.Acceleration)
	}
	if c.Control.BrakeAcceleration <= 0 {
		return fmt.Errorf("control.brake_acceleration %v must be positive", c.Control.BrakeAcceleration)
	}
	if c.Control.TorqueLimit <= 0 {
		return fmt.Errorf("control.torque_limit %v must be positive", c.Control.TorqueLimit)
	}
	if c.Control.KP <= 0 {
		return fmt.Errorf("control.kp %v must be positive", c.Control.KP)
	}
	if c.Control.KD < 0 {
		return fmt.Errorf("control.kd %v must not be negative", c.Control.KD)
	}

	if c.Scan.Start < 1 || c.Scan.Start > 127 {
		return fmt.Errorf("scan.start %d outside 1..127", c.Scan.Start)
	}
	if c.Scan.End < c.Scan.Start || c.Scan.End > 127 {
		return fmt.Errorf("scan.end %d outside %d..127", c.Scan.End, c.Scan.Start)
	}
	if c.Scan.WindowMs <= 0 {
		return fmt.Errorf("scan.window_ms %d must be positive", c.Scan.WindowMs)
	}
	if c.Scan.ReadTimeoutMs <= 0 || c.Scan.ReadTimeoutMs > c.Scan.WindowMs {
		return fmt.Errorf("scan.read_timeout_ms %d outside 1..window_ms", c.Scan.ReadTimeoutMs)
	}
	if c.Scan.ProbeSpacingMs < 0 {
		return fmt.Errorf("scan.probe_spacing_ms %d must not be negative", c.Scan.ProbeSpacingMs)
	}
	return nil
}
