// Package telemetry runs the ground station poll loop: it drains bytes from
// the serial link, decodes MAVLink frames and appends converted samples to
// the series store.
package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/ground.control/internal/mavlink"
	"github.com/banshee-data/ground.control/internal/monitoring"
	"github.com/banshee-data/ground.control/internal/series"
	"github.com/banshee-data/ground.control/internal/timeutil"
	"github.com/banshee-data/ground.control/internal/units"
)

var logf = monitoring.Component("telemetry")

const (
	// MaxPollInterval is the slowest allowed cycle period.
	MaxPollInterval = 100 * time.Millisecond
	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 50 * time.Millisecond
)

// Recorder receives every sample appended to the store. Flush is called at
// the end of each cycle that recorded something.
type Recorder interface {
	Record(seriesID string, s series.Sample) error
	Flush() error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder attaches a sample sink.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithClock replaces the wall clock used by Run.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithInterval sets the cycle period. Values above MaxPollInterval are
// clamped; zero or negative selects DefaultPollInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// Pipeline ties a byte source, a frame decoder and a series store together.
// Cycle must only be called from one goroutine at a time.
type Pipeline struct {
	src      io.ByteReader
	dec      *mavlink.Decoder
	store    *series.Store
	recorder Recorder
	clock    timeutil.Clock
	interval time.Duration

	scratch []byte

	cycles       monitoring.Counter
	packets      monitoring.Counter
	samples      monitoring.Counter
	unhandled    monitoring.Counter
	regressions  monitoring.Counter
	recordErrors monitoring.Counter

	mu         sync.Mutex
	lastPacket time.Time
}

// New returns a pipeline reading from src. A nil decoder uses the default
// dialect.
func New(src io.ByteReader, dec *mavlink.Decoder, store *series.Store, opts ...Option) *Pipeline {
	if dec == nil {
		dec = mavlink.NewDecoder(nil)
	}
	p := &Pipeline{
		src:   src,
		dec:   dec,
		store: store,
		clock: timeutil.RealClock{},
	}
	for _, o := range opts {
		o(p)
	}
	switch {
	case p.interval <= 0:
		p.interval = DefaultPollInterval
	case p.interval > MaxPollInterval:
		p.interval = MaxPollInterval
	}
	return p
}

// Interval returns the effective cycle period.
func (p *Pipeline) Interval() time.Duration { return p.interval }

// CycleResult reports what one Cycle did.
type CycleResult struct {
	Bytes   int
	Packets int
}

// Cycle drains every byte currently available, then decodes until the
// decoder needs more data. It never blocks and never fails: bad frames are
// dropped by the decoder and unknown packet kinds are counted.
func (p *Pipeline) Cycle() CycleResult {
	p.cycles.Inc()

	p.scratch = p.scratch[:0]
	for {
		b, err := p.src.ReadByte()
		if err != nil {
			break
		}
		p.scratch = append(p.scratch, b)
	}
	res := CycleResult{Bytes: len(p.scratch)}
	if len(p.scratch) > 0 {
		p.dec.Feed(p.scratch...)
	}

	recorded := false
	for {
		pkt, err := p.dec.DecodeNext()
		if errors.Is(err, mavlink.ErrNeedMoreData) {
			break
		}
		if err != nil {
			logf("decode: %v", err)
			break
		}
		res.Packets++
		p.packets.Inc()
		if p.handle(pkt) {
			recorded = true
		}
	}
	if res.Packets > 0 {
		p.mu.Lock()
		p.lastPacket = p.clock.Now()
		p.mu.Unlock()
	}

	if recorded && p.recorder != nil {
		if err := p.recorder.Flush(); err != nil {
			p.recordErrors.Inc()
			logf("flush recorder: %v", err)
		}
	}
	return res
}

// handle routes one packet and reports whether samples were appended.
func (p *Pipeline) handle(pkt mavlink.Packet) bool {
	switch msg := pkt.Message.(type) {
	case *mavlink.Composite:
		p.appendComposite(msg)
		return true
	default:
		p.unhandled.Inc()
		logf("unhandled message %d from %d/%d", pkt.Header.MessageID, pkt.Header.SystemID, pkt.Header.ComponentID)
		return false
	}
}

func (p *Pipeline) appendComposite(c *mavlink.Composite) {
	t := units.SecondsFromBootMillis(c.TimeBootMs)
	values := [...]struct {
		id string
		v  float64
	}{
		{series.AccelX, units.AccelFromMilliG(c.XAcc)},
		{series.AccelY, units.AccelFromMilliG(c.YAcc)},
		{series.AccelZ, units.AccelFromMilliG(c.ZAcc)},
		{series.GyroX, units.AngularRateFromMilliRad(c.XGyro)},
		{series.GyroY, units.AngularRateFromMilliRad(c.YGyro)},
		{series.GyroZ, units.AngularRateFromMilliRad(c.ZGyro)},
		{series.MagX, units.MagFromMilliGauss(c.XMag)},
		{series.MagY, units.MagFromMilliGauss(c.YMag)},
		{series.MagZ, units.MagFromMilliGauss(c.ZMag)},
	}
	for _, s := range values {
		regressed, err := p.store.AddPoint(s.id, t, s.v)
		if err != nil {
			logf("%v", err)
			continue
		}
		p.samples.Inc()
		if regressed {
			p.regressions.Inc()
		}
		if p.recorder != nil {
			if err := p.recorder.Record(s.id, series.Sample{Time: t, Value: s.v}); err != nil {
				p.recordErrors.Inc()
				logf("record %s: %v", s.id, err)
			}
		}
	}
}

// Run calls Cycle every interval until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	logf("poll loop running every %s", p.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.Cycle()
		}
	}
}

// Stats are the pipeline counters plus the decoder's.
type Stats struct {
	Cycles       uint64        `json:"cycles"`
	Packets      uint64        `json:"packets"`
	Samples      uint64        `json:"samples"`
	Unhandled    uint64        `json:"unhandled"`
	Regressions  uint64        `json:"regressions"`
	RecordErrors uint64        `json:"record_errors"`
	LastPacket   time.Time     `json:"last_packet,omitzero"`
	Decoder      mavlink.Stats `json:"decoder"`
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	last := p.lastPacket
	p.mu.Unlock()
	return Stats{
		Cycles:       p.cycles.Load(),
		Packets:      p.packets.Load(),
		Samples:      p.samples.Load(),
		Unhandled:    p.unhandled.Load(),
		Regressions:  p.regressions.Load(),
		RecordErrors: p.recordErrors.Load(),
		LastPacket:   last,
		Decoder:      p.dec.Stats(),
	}
}

// Store returns the series store the pipeline appends to.
func (p *Pipeline) Store() *series.Store { return p.store }
