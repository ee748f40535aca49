// Package config loads the ground station configuration file. Every field is
// optional: unset fields fall back to the defaults returned by the Get*
// methods, and command-line flags override what the file sets.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/ground.control/internal/link"
	"github.com/banshee-data/ground.control/internal/telemetry"
)

// Defaults for fields the file leaves unset.
const (
	DefaultListenAddr   = "localhost:8080"
	DefaultGRPCAddr     = "localhost:8081"
	DefaultPollInterval = "50ms"
	DefaultReadTimeout  = "50ms"
)

const maxFileSize = 1 * 1024 * 1024

// Config is the on-disk configuration. JSON and YAML files share the same
// snake_case keys.
type Config struct {
	// Serial link
	SerialPort *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty" yaml:"parity,omitempty"`

	// Poll loop
	PollInterval *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"` // duration string like "50ms"
	ReadTimeout  *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	MaxSamples   *int    `json:"max_samples,omitempty" yaml:"max_samples,omitempty"`

	// Servers
	ListenAddr *string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	GRPCAddr   *string `json:"grpc_addr,omitempty" yaml:"grpc_addr,omitempty"`

	// Recording
	FlightLogPath *string `json:"flight_log_path,omitempty" yaml:"flight_log_path,omitempty"`

	// Development
	Dev          *bool   `json:"dev,omitempty" yaml:"dev,omitempty"`
	SimulatorCSV *string `json:"simulator_csv,omitempty" yaml:"simulator_csv,omitempty"`
}

// Load reads a .json, .yaml or .yml configuration file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if _, err := c.Link().Normalize(); err != nil {
		return err
	}

	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 || d > telemetry.MaxPollInterval {
			return fmt.Errorf("poll_interval must be in (0, %s], got %s", telemetry.MaxPollInterval, d)
		}
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}

	if c.MaxSamples != nil && *c.MaxSamples < 0 {
		return fmt.Errorf("max_samples must be non-negative, got %d", *c.MaxSamples)
	}
	if c.ListenAddr != nil && *c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}

// Link returns the serial connection configuration.
func (c *Config) Link() link.Config {
	cfg := link.Config{Port: c.GetSerialPort()}
	if c.BaudRate != nil {
		cfg.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		cfg.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		cfg.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		cfg.Parity = *c.Parity
	}
	return cfg
}

// GetSerialPort returns the configured port name, or "" for none.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil || *c.BaudRate == 0 {
		return link.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetPollInterval parses and returns PollInterval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, DefaultPollInterval)
}

// GetReadTimeout parses and returns ReadTimeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, DefaultReadTimeout)
}

// GetMaxSamples returns the per-series retention bound; 0 keeps everything.
func (c *Config) GetMaxSamples() int {
	if c.MaxSamples == nil {
		return 0
	}
	return *c.MaxSamples
}

// GetListenAddr returns the HTTP listen address.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}

// GetGRPCAddr returns the gRPC health listen address; "" disables it.
func (c *Config) GetGRPCAddr() string {
	if c.GRPCAddr == nil {
		return DefaultGRPCAddr
	}
	return *c.GRPCAddr
}

// GetFlightLogPath returns the flight log database path; "" disables
// recording.
func (c *Config) GetFlightLogPath() string {
	if c.FlightLogPath == nil {
		return ""
	}
	return *c.FlightLogPath
}

// GetDev reports whether the simulator replaces the serial hardware.
func (c *Config) GetDev() bool {
	return c.Dev != nil && *c.Dev
}

// GetSimulatorCSV returns the flight data file replayed in dev mode; ""
// selects the synthetic flight.
func (c *Config) GetSimulatorCSV() string {
	if c.SimulatorCSV == nil {
		return ""
	}
	return *c.SimulatorCSV
}

func parseDurationOr(s *string, def string) time.Duration {
	fallback, _ := time.ParseDuration(def)
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}
