package link

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ground.control/internal/monitoring"
)

var logf = monitoring.Component("link")

// DefaultMaxPending bounds the bytes buffered between the reader goroutine
// and ReadByte before the oldest are dropped.
const DefaultMaxPending = 1 << 20

const readChunkSize = 4096

// Option configures a Manager.
type Option func(*Manager)

// WithReadTimeout sets the read timeout applied to ports implementing
// TimeoutSerialPorter.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readTimeout = d }
}

// WithMaxPending sets the pending byte bound.
func WithMaxPending(n int) Option {
	return func(m *Manager) { m.maxPending = n }
}

// Manager owns the serial connection and its lifecycle:
//
//	Disconnected -> Connecting -> Connected | Failed
//	Connected -> Disconnecting -> Disconnected | Failed
//	Failed -> Connecting
//
// Connect and Disconnect return immediately; the open and close run on their
// own goroutines and hand the result back under the manager lock. While
// connected a reader goroutine exclusively owns the port and queues what it
// reads for ReadByte.
type Manager struct {
	factory     SerialPortFactory
	enum        Enumerator
	readTimeout time.Duration
	maxPending  int

	mu          sync.Mutex
	state       State
	cfg         Config
	ports       []PortInfo
	lastErr     error
	reader      *portReader
	subscribers map[string]chan State
	onConnect   []func(Config)
	closed      bool

	pendingMu sync.Mutex
	pending   []byte

	bytesRead    monitoring.Counter
	bytesDropped monitoring.Counter

	wg sync.WaitGroup
}

type portReader struct {
	name string
	port SerialPorter
	stop chan struct{}
	done chan struct{}
}

// NewManager returns a Disconnected manager with the given initial
// configuration.
func NewManager(factory SerialPortFactory, enum Enumerator, cfg Config, opts ...Option) (*Manager, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		factory:     factory,
		enum:        enum,
		readTimeout: DefaultReadTimeout,
		maxPending:  DefaultMaxPending,
		cfg:         cfg,
		subscribers: make(map[string]chan State),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionAllowed reports whether the state permits Connect. Connect also
// needs a port name, either passed in or already configured.
func (m *Manager) ConnectionAllowed() bool {
	return m.State().ConnectionAllowed()
}

// DisconnectionAllowed reports whether Disconnect would start a transition.
func (m *Manager) DisconnectionAllowed() bool {
	return m.State().DisconnectionAllowed()
}

// Config returns the current connection configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig replaces the configuration. It fails with ErrOperationInFlight
// unless the manager is Disconnected or Failed.
func (m *Manager) SetConfig(cfg Config) error {
	cfg, err := cfg.Normalize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.ConnectionAllowed() {
		return fmt.Errorf("set config while %s: %w", m.state, ErrOperationInFlight)
	}
	m.cfg = cfg
	return nil
}

// SetBaudRate changes the baud rate used by the next Connect.
func (m *Manager) SetBaudRate(rate int) error {
	if !IsValidBaudRate(rate) {
		return fmt.Errorf("baud rate %d: %w", rate, ErrInvalidBaudRate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.ConnectionAllowed() {
		return fmt.Errorf("set baud rate while %s: %w", m.state, ErrOperationInFlight)
	}
	m.cfg.BaudRate = rate
	return nil
}

// SelectPort changes the port used by the next Connect. An empty name
// clears the selection.
func (m *Manager) SelectPort(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.ConnectionAllowed() {
		return fmt.Errorf("select port while %s: %w", m.state, ErrOperationInFlight)
	}
	m.cfg.Port = name
	return nil
}

// RefreshKnownPorts re-enumerates the host's serial ports. The connection
// state is not affected.
func (m *Manager) RefreshKnownPorts() error {
	ports, err := m.enum.Ports()
	if err != nil {
		return fmt.Errorf("enumerate ports: %w", err)
	}
	m.mu.Lock()
	m.ports = ports
	m.mu.Unlock()
	logf("found %d serial ports", len(ports))
	return nil
}

// KnownPorts returns the ports found by the last RefreshKnownPorts.
func (m *Manager) KnownPorts() []PortInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PortInfo, len(m.ports))
	copy(out, m.ports)
	return out
}

// LastError returns the cause of the most recent transition to Failed, or
// nil if the last transition succeeded.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// BytesRead returns the total number of bytes returned by ReadByte.
func (m *Manager) BytesRead() uint64 {
	return m.bytesRead.Load()
}

// BytesDropped returns how many received bytes were discarded because the
// pending queue was full.
func (m *Manager) BytesDropped() uint64 {
	return m.bytesDropped.Load()
}

// Pending returns the number of received bytes not yet consumed.
func (m *Manager) Pending() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// Connect starts opening port, or the configured port when port is empty.
// It reports whether a transition started; calling it while Connecting,
// Connected or Disconnecting, or with no port name at all, does nothing.
func (m *Manager) Connect(port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.state.ConnectionAllowed() {
		return false
	}
	if port == "" {
		port = m.cfg.Port
	}
	if port == "" {
		return false
	}
	m.cfg.Port = port
	cfg := m.cfg

	m.pendingMu.Lock()
	m.pending = nil
	m.pendingMu.Unlock()

	m.lastErr = nil
	m.setStateLocked(Connecting)
	m.wg.Add(1)
	go m.open(cfg)
	return true
}

// OnConnect registers f to run on the connect goroutine once a port has
// opened, before the manager reports Connected. ReadByte returns no data
// until every hook has returned.
func (m *Manager) OnConnect(f func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = append(m.onConnect, f)
}

func (m *Manager) open(cfg Config) {
	defer m.wg.Done()

	port, err := m.factory.Open(cfg.Port, cfg.PortOptions)
	if err == nil {
		if tp, ok := port.(TimeoutSerialPorter); ok && m.readTimeout > 0 {
			if terr := tp.SetReadTimeout(m.readTimeout); terr != nil {
				port.Close()
				port, err = nil, terr
			}
		}
	}
	if err == nil {
		m.mu.Lock()
		hooks := slices.Clone(m.onConnect)
		m.mu.Unlock()
		for _, hook := range hooks {
			hook(cfg)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastErr = &ChannelOpenError{Port: cfg.Port, Op: "open", Err: err}
		logf("%v", m.lastErr)
		m.setStateLocked(Failed)
		return
	}
	if m.closed {
		port.Close()
		m.setStateLocked(Disconnected)
		return
	}

	r := &portReader{
		name: cfg.Port,
		port: port,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	m.reader = r
	logf("connected to %s at %d baud", cfg.Port, cfg.BaudRate)
	m.setStateLocked(Connected)
	go m.readLoop(r)
}

// Disconnect starts closing the open port. It reports whether a transition
// started; it does nothing unless the manager is Connected.
func (m *Manager) Disconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.DisconnectionAllowed() {
		return false
	}
	r := m.reader
	m.reader = nil
	m.setStateLocked(Disconnecting)
	m.wg.Add(1)
	go m.close(r)
	return true
}

func (m *Manager) close(r *portReader) {
	defer m.wg.Done()

	err := r.halt()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr = &ChannelOpenError{Port: r.name, Op: "close", Err: err}
		logf("%v", m.lastErr)
		m.setStateLocked(Failed)
		return
	}
	logf("disconnected from %s", r.name)
	m.setStateLocked(Disconnected)
}

// halt stops the read loop, waits for it to let go of the port and closes it.
func (r *portReader) halt() error {
	close(r.stop)
	<-r.done
	return r.port.Close()
}

func (m *Manager) readLoop(r *portReader) {
	defer close(r.done)
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, err := r.port.Read(buf)
		if n > 0 {
			m.push(buf[:n])
		}
		if err != nil {
			select {
			case <-r.stop:
				return
			default:
			}
			m.linkLost(r, err)
			return
		}
	}
}

// linkLost moves a connection whose port failed under the reader to Failed.
func (m *Manager) linkLost(r *portReader, err error) {
	m.mu.Lock()
	if m.reader != r {
		m.mu.Unlock()
		return
	}
	m.reader = nil
	m.lastErr = fmt.Errorf("read %s: %w", r.name, err)
	logf("link lost: %v", m.lastErr)
	m.setStateLocked(Failed)
	m.mu.Unlock()

	if cerr := r.port.Close(); cerr != nil {
		logf("close %s after link loss: %v", r.name, cerr)
	}
}

func (m *Manager) push(p []byte) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending = append(m.pending, p...)
	if m.maxPending > 0 && len(m.pending) > m.maxPending {
		over := len(m.pending) - m.maxPending
		m.pending = m.pending[over:]
		m.bytesDropped.Add(uint64(over))
	}
}

// ReadByte returns the next received byte without blocking. It returns
// ErrNotConnected outside the Connected state and ErrNoDataAvailable when
// nothing is waiting.
func (m *Manager) ReadByte() (byte, error) {
	if m.State() != Connected {
		return 0, ErrNotConnected
	}

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if len(m.pending) == 0 {
		return 0, ErrNoDataAvailable
	}
	b := m.pending[0]
	m.pending = m.pending[1:]
	if len(m.pending) == 0 {
		m.pending = nil
	}
	m.bytesRead.Inc()
	return b, nil
}

// Subscribe returns a channel that receives every state change. Slow
// subscribers miss changes rather than stall the manager.
func (m *Manager) Subscribe() (string, <-chan State) {
	id := uuid.NewString()
	ch := make(chan State, 8)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes the subscription with the given id.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	for _, ch := range m.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close shuts the manager down: it closes any open port, waits for in-flight
// transitions and closes all subscriptions. An open link passes through
// Disconnecting to Disconnected, as with Disconnect. Connect fails afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	r := m.reader
	m.reader = nil
	if r != nil {
		m.setStateLocked(Disconnecting)
	}
	m.mu.Unlock()

	var err error
	if r != nil {
		if cerr := r.halt(); cerr != nil {
			err = &ChannelOpenError{Port: r.name, Op: "close", Err: cerr}
		}
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if r != nil {
		m.setStateLocked(Disconnected)
	}
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return err
}
