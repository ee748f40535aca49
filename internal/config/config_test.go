package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/ground.control/internal/link"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := cfg.GetBaudRate(); got != link.DefaultBaudRate {
		t.Errorf("GetBaudRate() = %d, want %d", got, link.DefaultBaudRate)
	}
	if got := cfg.GetPollInterval(); got != 50*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 50ms", got)
	}
	if got := cfg.GetReadTimeout(); got != 50*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 50ms", got)
	}
	if got := cfg.GetListenAddr(); got != DefaultListenAddr {
		t.Errorf("GetListenAddr() = %q", got)
	}
	if got := cfg.GetGRPCAddr(); got != DefaultGRPCAddr {
		t.Errorf("GetGRPCAddr() = %q", got)
	}
	if cfg.GetSerialPort() != "" || cfg.GetFlightLogPath() != "" || cfg.GetSimulatorCSV() != "" {
		t.Error("optional paths should default to empty")
	}
	if cfg.GetDev() {
		t.Error("GetDev() should default to false")
	}
	if cfg.GetMaxSamples() != 0 {
		t.Errorf("GetMaxSamples() = %d, want 0", cfg.GetMaxSamples())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "gc.json", `{
  "serial_port": "/dev/ttyUSB0",
  "baud_rate": 115200,
  "parity": "E",
  "poll_interval": "20ms",
  "max_samples": 5000,
  "flight_log_path": "flight.db",
  "dev": true
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GetSerialPort() != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", cfg.GetSerialPort())
	}
	if cfg.GetBaudRate() != 115200 {
		t.Errorf("GetBaudRate() = %d", cfg.GetBaudRate())
	}
	if cfg.GetPollInterval() != 20*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", cfg.GetPollInterval())
	}
	if cfg.GetMaxSamples() != 5000 {
		t.Errorf("GetMaxSamples() = %d", cfg.GetMaxSamples())
	}
	if !cfg.GetDev() {
		t.Error("GetDev() = false, want true")
	}

	lc := cfg.Link()
	if lc.Port != "/dev/ttyUSB0" || lc.BaudRate != 115200 || lc.Parity != "E" {
		t.Errorf("Link() = %+v", lc)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "gc.yaml", `
serial_port: /dev/ttyACM0
baud_rate: 921600
stop_bits: 2
listen_addr: ":9000"
grpc_addr: ""
simulator_csv: data/flight_data_2.csv
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GetBaudRate() != 921600 {
		t.Errorf("GetBaudRate() = %d", cfg.GetBaudRate())
	}
	if cfg.Link().StopBits != 2 {
		t.Errorf("StopBits = %d, want 2", cfg.Link().StopBits)
	}
	if cfg.GetListenAddr() != ":9000" {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}
	if cfg.GetGRPCAddr() != "" {
		t.Errorf("GetGRPCAddr() = %q, want disabled", cfg.GetGRPCAddr())
	}
	if cfg.GetSimulatorCSV() != "data/flight_data_2.csv" {
		t.Errorf("GetSimulatorCSV() = %q", cfg.GetSimulatorCSV())
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GetBaudRate() != link.DefaultBaudRate {
		t.Errorf("GetBaudRate() = %d", cfg.GetBaudRate())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "gc.toml", "", "extension"},
		{"bad json", "gc.json", "{", "parse config JSON"},
		{"unknown yaml key", "gc.yaml", "serial_prot: x\n", "parse config YAML"},
		{"illegal baud", "gc.json", `{"baud_rate": 12345}`, "invalid baud rate"},
		{"slow poll", "gc.json", `{"poll_interval": "250ms"}`, "poll_interval"},
		{"bad duration", "gc.json", `{"read_timeout": "soon"}`, "read_timeout"},
		{"negative retention", "gc.json", `{"max_samples": -1}`, "max_samples"},
		{"parity", "gc.yaml", "parity: M\n", "parity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_IllegalBaudIsSentinel(t *testing.T) {
	_, err := Load(writeConfig(t, "gc.json", `{"baud_rate": 31}`))
	if !errors.Is(err, link.ErrInvalidBaudRate) {
		t.Errorf("error = %v, want ErrInvalidBaudRate", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"serial_port": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Load() error = %v, want too large", err)
	}
}

func TestParseDurationOr_Fallback(t *testing.T) {
	bad := "nonsense"
	if got := parseDurationOr(&bad, "75ms"); got != 75*time.Millisecond {
		t.Errorf("parseDurationOr() = %v, want fallback 75ms", got)
	}
}
