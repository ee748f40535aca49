package units

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestAccelFromMilliG(t *testing.T) {
	tests := []struct {
		name     string
		raw      int16
		expected float64
	}{
		{"one g", 1000, 9.81},
		{"negative half g", -500, -4.905},
		{"zero", 0, 0},
		{"max int16", math.MaxInt16, 32.767 * 9.81},
		{"min int16", math.MinInt16, -32.768 * 9.81},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AccelFromMilliG(tt.raw)
			if math.Abs(result-tt.expected) > tolerance {
				t.Errorf("AccelFromMilliG(%d) = %v, want %v", tt.raw, result, tt.expected)
			}
		})
	}
}

func TestAngularRateFromMilliRad(t *testing.T) {
	tests := []struct {
		raw      int16
		expected float64
	}{
		{2500, 2.5},
		{-1000, -1},
		{0, 0},
		{1, 0.001},
	}

	for _, tt := range tests {
		result := AngularRateFromMilliRad(tt.raw)
		if math.Abs(result-tt.expected) > tolerance {
			t.Errorf("AngularRateFromMilliRad(%d) = %v, want %v", tt.raw, result, tt.expected)
		}
	}
}

func TestMagFromMilliGauss_PassThrough(t *testing.T) {
	for _, raw := range []int16{-32768, -1, 0, 1, 250, 32767} {
		if got := MagFromMilliGauss(raw); got != float64(raw) {
			t.Errorf("MagFromMilliGauss(%d) = %v, want %v", raw, got, float64(raw))
		}
	}
}

func TestSecondsFromBootMillis(t *testing.T) {
	if got := SecondsFromBootMillis(12345); math.Abs(got-12.345) > tolerance {
		t.Errorf("SecondsFromBootMillis(12345) = %v, want 12.345", got)
	}
	if got := SecondsFromBootMillis(math.MaxUint32); got <= 0 {
		t.Errorf("SecondsFromBootMillis(max) = %v, want positive", got)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"acceleration", MetersPerSecondSquared, true},
		{"angular rate", RadiansPerSecond, true},
		{"magnetic field", MilliGauss, true},
		{"seconds", Seconds, true},
		{"invalid unit", "mph", false},
		{"empty string", "", false},
		{"case sensitive", "MG", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestQuantity(t *testing.T) {
	tests := map[string]string{
		MetersPerSecondSquared: "Acceleration",
		RadiansPerSecond:       "Angular Rate",
		MilliGauss:             "Magnetic Field",
		Seconds:                "Time",
		"furlongs":             "furlongs",
	}
	for unit, want := range tests {
		if got := Quantity(unit); got != want {
			t.Errorf("Quantity(%q) = %q, want %q", unit, got, want)
		}
	}
}
