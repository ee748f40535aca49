package link

import (
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		wantErr bool
	}{
		{"valid 9600 7E2", PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}, false},
		{"valid 921600", PortOptions{BaudRate: 921600}, false},
		{"illegal baud", PortOptions{BaudRate: 12345}, true},
		{"negative baud", PortOptions{BaudRate: -5}, true},
		{"data bits too small", PortOptions{DataBits: 4}, true},
		{"data bits too large", PortOptions{DataBits: 9}, true},
		{"stop bits", PortOptions{StopBits: 3}, true},
		{"parity", PortOptions{Parity: "M"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPortOptions_InvalidBaudIsSentinel(t *testing.T) {
	_, err := PortOptions{BaudRate: 1000}.Normalize()
	if !errors.Is(err, ErrInvalidBaudRate) {
		t.Errorf("error = %v, want ErrInvalidBaudRate", err)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "O"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity || mode.DataBits != 8 {
		t.Errorf("default mode = %+v", mode)
	}
}

func TestIsValidBaudRate(t *testing.T) {
	for _, rate := range BaudRates {
		if !IsValidBaudRate(rate) {
			t.Errorf("IsValidBaudRate(%d) = false", rate)
		}
	}
	for _, rate := range []int{0, 1, 49, 51, 14400, 1000000} {
		if IsValidBaudRate(rate) {
			t.Errorf("IsValidBaudRate(%d) = true", rate)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Disconnected:  "disconnected",
		Connecting:    "connecting",
		Connected:     "connected",
		Disconnecting: "disconnecting",
		Failed:        "failed",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for s := Disconnected; s <= Failed; s++ {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", s, err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != s {
			t.Errorf("round trip of %s gave %s", s, got)
		}
	}

	var bad State
	if err := bad.UnmarshalText([]byte("unknown")); err == nil {
		t.Error("expected error for unknown state name")
	}
}

func TestChannelOpenError(t *testing.T) {
	cause := errors.New("permission denied")
	err := error(&ChannelOpenError{Port: "/dev/ttyUSB0", Op: "open", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("ChannelOpenError should unwrap to its cause")
	}
	if got, want := err.Error(), "open /dev/ttyUSB0: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	var coe *ChannelOpenError
	if !errors.As(err, &coe) || coe.Port != "/dev/ttyUSB0" {
		t.Errorf("errors.As failed: %v", coe)
	}
}
