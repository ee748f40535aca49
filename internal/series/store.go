package series

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/ground.control/internal/units"
)

// ErrUnknownSeries is returned when a point targets a series that was never
// defined.
var ErrUnknownSeries = errors.New("unknown series")

// Store is an ordered set of named series.
type Store struct {
	mu         sync.RWMutex
	order      []*Series
	byID       map[string]*Series
	maxSamples int
}

// NewStore returns an empty store whose series retain at most maxSamples
// points each (0 for no bound).
func NewStore(maxSamples int) *Store {
	return &Store{
		byID:       make(map[string]*Series),
		maxSamples: maxSamples,
	}
}

// Define adds a series, or returns the existing one with the same id.
func (s *Store) Define(id, name, unit string) *Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[id]; ok {
		return existing
	}
	ser := New(id, name, unit, s.maxSamples)
	s.byID[id] = ser
	s.order = append(s.order, ser)
	return ser
}

// Get returns the series with the given id.
func (s *Store) Get(id string) (*Series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.byID[id]
	return ser, ok
}

// AddPoint appends a sample to the series named id. The returned bool is the
// timestamp regression flag from Series.AddPoint.
func (s *Store) AddPoint(id string, t, v float64) (bool, error) {
	ser, ok := s.Get(id)
	if !ok {
		return false, fmt.Errorf("add point to %q: %w", id, ErrUnknownSeries)
	}
	return ser.AddPoint(t, v), nil
}

// List returns the series in definition order.
func (s *Store) List() []*Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Series, len(s.order))
	copy(out, s.order)
	return out
}

// Group is a set of series sharing a unit, drawn on one chart.
type Group struct {
	Title  string
	Unit   string
	Series []*Series
}

// Groups partitions the store by unit, in definition order.
func (s *Store) Groups() []Group {
	var groups []Group
	idx := make(map[string]int)
	for _, sr := range s.List() {
		i, ok := idx[sr.Unit]
		if !ok {
			i = len(groups)
			idx[sr.Unit] = i
			groups = append(groups, Group{Title: units.Quantity(sr.Unit), Unit: sr.Unit})
		}
		groups[i].Series = append(groups[i].Series, sr)
	}
	return groups
}

// Series ids for the composite sensor record.
const (
	AccelX = "accel_x"
	AccelY = "accel_y"
	AccelZ = "accel_z"
	GyroX  = "gyro_x"
	GyroY  = "gyro_y"
	GyroZ  = "gyro_z"
	MagX   = "mag_x"
	MagY   = "mag_y"
	MagZ   = "mag_z"
)

// NewTelemetryStore returns a store with the nine accelerometer, gyroscope
// and magnetometer series defined.
func NewTelemetryStore(maxSamples int) *Store {
	s := NewStore(maxSamples)
	s.Define(AccelX, "X Acceleration", units.MetersPerSecondSquared)
	s.Define(AccelY, "Y Acceleration", units.MetersPerSecondSquared)
	s.Define(AccelZ, "Z Acceleration", units.MetersPerSecondSquared)
	s.Define(GyroX, "X Angular Rate", units.RadiansPerSecond)
	s.Define(GyroY, "Y Angular Rate", units.RadiansPerSecond)
	s.Define(GyroZ, "Z Angular Rate", units.RadiansPerSecond)
	s.Define(MagX, "X Magnetic Field", units.MilliGauss)
	s.Define(MagY, "Y Magnetic Field", units.MilliGauss)
	s.Define(MagZ, "Z Magnetic Field", units.MilliGauss)
	return s
}
