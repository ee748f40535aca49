// Package units converts raw integer sensor fields reported by the flight
// computer into physical units.
package units

// Unit label constants
const (
	MetersPerSecondSquared = "m/s²"
	RadiansPerSecond       = "rad/s"
	MilliGauss             = "mG"
	Seconds                = "s"
)

// StandardGravity is the acceleration of one g used by the flight computer
// firmware, in m/s².
const StandardGravity = 9.81

// ValidUnits contains all valid unit labels
var ValidUnits = []string{MetersPerSecondSquared, RadiansPerSecond, MilliGauss, Seconds}

// IsValid checks if the given unit label is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Quantity names the physical quantity measured in unit, for chart titles.
// Unknown units are returned as given.
func Quantity(unit string) string {
	switch unit {
	case MetersPerSecondSquared:
		return "Acceleration"
	case RadiansPerSecond:
		return "Angular Rate"
	case MilliGauss:
		return "Magnetic Field"
	case Seconds:
		return "Time"
	}
	return unit
}

// AccelFromMilliG converts an accelerometer reading in milli-g to m/s².
func AccelFromMilliG(raw int16) float64 {
	return float64(raw) / 1000.0 * StandardGravity
}

// AngularRateFromMilliRad converts a gyroscope reading in mrad/s to rad/s.
func AngularRateFromMilliRad(raw int16) float64 {
	return float64(raw) / 1000.0
}

// MagFromMilliGauss returns a magnetometer reading in mG. The value is passed
// through unscaled until a calibration for the sensor exists.
func MagFromMilliGauss(raw int16) float64 {
	return float64(raw)
}

// SecondsFromBootMillis converts a time_boot_ms field to seconds since boot.
func SecondsFromBootMillis(ms uint32) float64 {
	return float64(ms) / 1000.0
}
