// Package series stores converted telemetry samples as append-only,
// arrival-ordered time series for live display.
package series

import (
	"iter"
	"sync"

	"github.com/banshee-data/ground.control/internal/monitoring"
)

var logf = monitoring.Component("series")

// Sample is one reading: seconds since device boot and a value in the
// series' unit.
type Sample struct {
	Time  float64 `json:"t"`
	Value float64 `json:"v"`
}

// Series is one physical measurement. Points are kept in the order they were
// appended; timestamps that go backwards are kept in place and counted.
// Series is safe for one writer and any number of readers.
type Series struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`

	mu          sync.RWMutex
	samples     []Sample
	maxTime     float64
	regressions uint64
	dropped     uint64
	maxSamples  int
}

// New returns an empty series. maxSamples bounds retention; 0 keeps every
// sample.
func New(id, name, unit string, maxSamples int) *Series {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &Series{ID: id, Name: name, Unit: unit, maxSamples: maxSamples}
}

// AddPoint appends a sample and reports whether its timestamp is earlier
// than the latest timestamp seen so far. Such points are still stored.
func (s *Series) AddPoint(t, v float64) (regressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) > 0 && t < s.maxTime {
		regressed = true
		s.regressions++
		logf("%s: timestamp %.3f precedes %.3f", s.ID, t, s.maxTime)
	}
	if len(s.samples) == 0 || t > s.maxTime {
		s.maxTime = t
	}

	s.samples = append(s.samples, Sample{Time: t, Value: v})
	if s.maxSamples > 0 && len(s.samples) > s.maxSamples {
		// reslice rather than shift so views handed out by All stay intact
		over := len(s.samples) - s.maxSamples
		s.samples = s.samples[over:]
		s.dropped += uint64(over)
	}
	return regressed
}

// LastValue returns the most recently appended sample.
func (s *Series) LastValue() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Len returns the number of retained samples.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// All iterates the samples in insertion order. Each range over the returned
// sequence starts from the beginning and sees the samples present when it
// started; iterating never modifies the series.
func (s *Series) All() iter.Seq2[int, Sample] {
	return func(yield func(int, Sample) bool) {
		s.mu.RLock()
		view := s.samples[:len(s.samples):len(s.samples)]
		s.mu.RUnlock()
		for i, sample := range view {
			if !yield(i, sample) {
				return
			}
		}
	}
}

// Points returns a copy of the retained samples.
func (s *Series) Points() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Regressions returns how many appended points had a timestamp earlier than
// one already stored.
func (s *Series) Regressions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regressions
}

// Dropped returns how many samples retention has evicted.
func (s *Series) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
