package simulator

import (
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/ground.control/internal/link"
	"github.com/banshee-data/ground.control/internal/mavlink"
)

// DefaultPeriod is the spacing of recorded flight data.
const DefaultPeriod = 190 * time.Millisecond

const maxCatchUp = 64

var errClosed = errors.New("simulated port closed")

// Options controls a simulated port.
type Options struct {
	// Period is the wall-clock time between frames.
	Period time.Duration
	// NoiseEvery inserts a burst of line noise after every n-th frame.
	// Zero disables noise.
	NoiseEvery int
	// SystemID and ComponentID identify the simulated sender.
	SystemID    uint8
	ComponentID uint8
}

// Port is a link.TimeoutSerialPorter that emits a Source as MAVLink frames
// at a steady pace. Writes are accepted and discarded. Once the source is
// exhausted Read returns io.EOF.
type Port struct {
	mu      sync.Mutex
	src     Source
	opts    Options
	enc     mavlink.Encoder
	rng     *rand.Rand
	pending []byte
	nextDue time.Time
	timeout time.Duration
	frames  int
	done    bool
	closed  bool
	closeCh chan struct{}
}

// NewPort returns a port that starts emitting immediately.
func NewPort(src Source, opts Options) *Port {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.SystemID == 0 {
		opts.SystemID = 1
	}
	if opts.ComponentID == 0 {
		opts.ComponentID = 1
	}
	return &Port{
		src:     src,
		opts:    opts,
		enc:     mavlink.Encoder{SystemID: opts.SystemID, ComponentID: opts.ComponentID},
		rng:     rand.New(rand.NewPCG(uint64(opts.SystemID), 7)),
		nextDue: time.Now(),
		timeout: link.DefaultReadTimeout,
		closeCh: make(chan struct{}),
	}
}

// Read returns frame bytes that have come due, waiting at most the read
// timeout for the next one.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errClosed
	}
	if len(p.pending) == 0 {
		if p.done {
			p.mu.Unlock()
			return 0, io.EOF
		}
		wait := time.Until(p.nextDue)
		if wait > p.timeout {
			wait = p.timeout
		}
		p.mu.Unlock()

		if wait > 0 {
			select {
			case <-p.closeCh:
				return 0, errClosed
			case <-time.After(wait):
			}
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, errClosed
		}
		if err := p.emitDueLocked(time.Now()); err != nil {
			p.mu.Unlock()
			return 0, err
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	if len(p.pending) == 0 {
		p.pending = nil
	}
	p.mu.Unlock()
	return n, nil
}

func (p *Port) emitDueLocked(now time.Time) error {
	for i := 0; i < maxCatchUp && !now.Before(p.nextDue); i++ {
		rec, ok := p.src.Next()
		if !ok {
			p.done = true
			break
		}
		frame, err := p.enc.Encode(&rec)
		if err != nil {
			return err
		}
		p.pending = append(p.pending, frame...)
		p.frames++
		if p.opts.NoiseEvery > 0 && p.frames%p.opts.NoiseEvery == 0 {
			p.pending = append(p.pending, p.noise()...)
		}
		p.nextDue = p.nextDue.Add(p.opts.Period)
	}
	if now.Sub(p.nextDue) > p.opts.Period*maxCatchUp {
		p.nextDue = now
	}
	return nil
}

// noise returns a short burst of bytes that never contains a start marker.
func (p *Port) noise() []byte {
	out := make([]byte, 1+p.rng.IntN(8))
	for i := range out {
		out[i] = byte(p.rng.IntN(int(mavlink.MagicV2)))
	}
	return out
}

// Write discards p.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errClosed
	}
	return len(b), nil
}

// Close stops the port. Pending and future reads fail.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.closeCh)
	}
	return nil
}

// SetReadTimeout implements link.TimeoutSerialPorter.
func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	return nil
}

// Frames returns how many frames have been emitted.
func (p *Port) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// PortName is the name the simulator enumerates under.
const PortName = "sim0"

// Factory opens simulated ports. Each Open starts a fresh source.
type Factory struct {
	NewSource func() Source
	Options   Options
}

// Open implements link.SerialPortFactory. The baud rate is accepted but
// does not affect pacing.
func (f *Factory) Open(path string, opts link.PortOptions) (link.SerialPorter, error) {
	if _, err := opts.Normalize(); err != nil {
		return nil, err
	}
	return NewPort(f.NewSource(), f.Options), nil
}

// Enumerator reports the single simulated port.
type Enumerator struct{}

// Ports implements link.Enumerator.
func (Enumerator) Ports() ([]link.PortInfo, error) {
	return []link.PortInfo{{Name: PortName, Product: "Simulated flight computer"}}, nil
}
