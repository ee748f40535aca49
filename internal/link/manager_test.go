package link

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ground.control/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

func newTestManager(t *testing.T, factory SerialPortFactory) *Manager {
	t.Helper()
	enum := &MockEnumerator{List: []PortInfo{{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"}}}
	m, err := NewManager(factory, enum, Config{Port: "/dev/ttyUSB0"}, WithReadTimeout(2*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitFor, tick,
		"state never reached %s (now %s)", want, m.State())
}

func TestNewManager(t *testing.T) {
	m := newTestManager(t, NewMockSerialPortFactory(NewTestableSerialPort()))
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, m.ConnectionAllowed())
	assert.False(t, m.DisconnectionAllowed())
	assert.Equal(t, DefaultBaudRate, m.Config().BaudRate)
	assert.Empty(t, m.KnownPorts())
}

func TestNewManager_InvalidConfig(t *testing.T) {
	_, err := NewManager(NewMockSerialPortFactory(nil), &MockEnumerator{}, Config{PortOptions: PortOptions{BaudRate: 7}})
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
}

func TestManager_SetBaudRate(t *testing.T) {
	m := newTestManager(t, NewMockSerialPortFactory(NewTestableSerialPort()))

	require.NoError(t, m.SetBaudRate(115200))
	assert.Equal(t, 115200, m.Config().BaudRate)

	err := m.SetBaudRate(12345)
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
	assert.Equal(t, 115200, m.Config().BaudRate, "rejected rate must leave config unchanged")
}

func TestManager_ConnectDisconnect(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)
	m := newTestManager(t, factory)
	require.NoError(t, m.SetBaudRate(921600))

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyUSB0", call.Path)
	assert.Equal(t, 921600, call.Options.BaudRate)

	require.True(t, m.Disconnect())
	waitState(t, m, Disconnected)
	assert.True(t, port.IsClosed())
	assert.NoError(t, m.LastError())
}

func TestManager_ConnectingIsObservable(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)
	factory.Gate = make(chan struct{})
	m := newTestManager(t, factory)

	id, events := m.Subscribe()
	defer m.Unsubscribe(id)

	require.True(t, m.Connect("/dev/ttyACM1"))
	assert.Equal(t, Connecting, m.State())
	assert.False(t, m.ConnectionAllowed())
	assert.False(t, m.DisconnectionAllowed())

	// no-ops while the open is in flight
	assert.False(t, m.Connect(""))
	assert.False(t, m.Disconnect())
	assert.ErrorIs(t, m.SetBaudRate(9600), ErrOperationInFlight)
	assert.ErrorIs(t, m.SelectPort("/dev/ttyS0"), ErrOperationInFlight)

	close(factory.Gate)
	waitState(t, m, Connected)
	assert.Equal(t, "/dev/ttyACM1", m.Config().Port)
	assert.Equal(t, 1, factory.Calls())

	assert.Equal(t, Connecting, <-events)
	assert.Equal(t, Connected, <-events)
}

func TestManager_ConnectNoOpWhenConnected(t *testing.T) {
	factory := NewMockSerialPortFactory(NewTestableSerialPort())
	m := newTestManager(t, factory)

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	assert.False(t, m.Connect(""))
	assert.False(t, m.Connect("/dev/other"))
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, 1, factory.Calls())
	assert.ErrorIs(t, m.SetConfig(Config{Port: "x"}), ErrOperationInFlight)
}

func TestManager_DisconnectNoOpWhenNotConnected(t *testing.T) {
	m := newTestManager(t, NewMockSerialPortFactory(NewTestableSerialPort()))
	assert.False(t, m.Disconnect())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_OpenFailure(t *testing.T) {
	factory := NewMockSerialPortFactory(nil)
	factory.Error = errors.New("no such file or directory")
	m := newTestManager(t, factory)

	require.True(t, m.Connect(""))
	waitState(t, m, Failed)

	var openErr *ChannelOpenError
	require.ErrorAs(t, m.LastError(), &openErr)
	assert.Equal(t, "/dev/ttyUSB0", openErr.Port)
	assert.True(t, m.ConnectionAllowed())

	// Failed -> Connecting -> Connected once the port appears
	factory.SetError(nil)
	factory.Port = NewTestableSerialPort()
	require.True(t, m.Connect(""))
	waitState(t, m, Connected)
	assert.NoError(t, m.LastError())
}

func TestManager_ConnectWithoutPort(t *testing.T) {
	factory := NewMockSerialPortFactory(NewTestableSerialPort())
	m, err := NewManager(factory, &MockEnumerator{}, Config{}, WithReadTimeout(2*time.Millisecond))
	require.NoError(t, err)
	defer m.Close()

	_, events := m.Subscribe()
	assert.False(t, m.Connect(""))
	assert.Equal(t, Disconnected, m.State())
	assert.NoError(t, m.LastError())
	assert.Zero(t, factory.Calls())
	assert.Empty(t, events)

	require.NoError(t, m.SelectPort("/dev/ttyACM0"))
	require.True(t, m.Connect(""))
	waitState(t, m, Connected)
	assert.Equal(t, "/dev/ttyACM0", factory.LastCall().Path)
}

func TestManager_OnConnectRunsBeforeConnected(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{0xFD})
	m := newTestManager(t, NewMockSerialPortFactory(port))

	var (
		seen    []State
		readErr error
		gotPort string
	)
	m.OnConnect(func(cfg Config) {
		seen = append(seen, m.State())
		_, readErr = m.ReadByte()
		gotPort = cfg.Port
	})

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)
	assert.Equal(t, []State{Connecting}, seen)
	assert.ErrorIs(t, readErr, ErrNotConnected)
	assert.Equal(t, "/dev/ttyUSB0", gotPort)
}

func TestManager_OnConnectSkippedOnOpenFailure(t *testing.T) {
	factory := NewMockSerialPortFactory(nil)
	factory.SetError(errors.New("no such device"))
	m := newTestManager(t, factory)

	calls := 0
	m.OnConnect(func(Config) { calls++ })
	require.True(t, m.Connect(""))
	waitState(t, m, Failed)
	assert.Zero(t, calls)
}

func TestManager_CloseFailure(t *testing.T) {
	port := NewTestableSerialPort()
	port.CloseError = errors.New("device busy")
	m := newTestManager(t, NewMockSerialPortFactory(port))

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)
	require.True(t, m.Disconnect())
	waitState(t, m, Failed)

	var openErr *ChannelOpenError
	require.ErrorAs(t, m.LastError(), &openErr)
	assert.Equal(t, "close", openErr.Op)
}

func TestManager_ReadByte(t *testing.T) {
	port := NewTestableSerialPort()
	m := newTestManager(t, NewMockSerialPortFactory(port))

	_, err := m.ReadByte()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	_, err = m.ReadByte()
	assert.ErrorIs(t, err, ErrNoDataAvailable)

	port.AddReadData([]byte{0xFD, 0x01, 0x02})
	require.Eventually(t, func() bool { return m.Pending() == 3 }, waitFor, tick)

	var got []byte
	for {
		b, err := m.ReadByte()
		if errors.Is(err, ErrNoDataAvailable) {
			break
		}
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, []byte{0xFD, 0x01, 0x02}, got)
	assert.Equal(t, uint64(3), m.BytesRead())
}

func TestManager_PendingBound(t *testing.T) {
	port := NewTestableSerialPort()
	enum := &MockEnumerator{}
	m, err := NewManager(NewMockSerialPortFactory(port), enum, Config{Port: "p"},
		WithReadTimeout(2*time.Millisecond), WithMaxPending(4))
	require.NoError(t, err)
	defer m.Close()

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	port.AddReadData([]byte{1, 2, 3, 4, 5, 6})
	require.Eventually(t, func() bool { return m.BytesDropped() == 2 }, waitFor, tick)

	b, err := m.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(3), b)
}

func TestManager_LinkLoss(t *testing.T) {
	port := NewTestableSerialPort()
	m := newTestManager(t, NewMockSerialPortFactory(port))

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	port.FailNextRead(errors.New("device unplugged"))
	waitState(t, m, Failed)

	assert.ErrorContains(t, m.LastError(), "device unplugged")
	assert.True(t, port.IsClosed())
	_, err := m.ReadByte()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, m.Disconnect())
}

func TestManager_RefreshKnownPorts(t *testing.T) {
	port := NewTestableSerialPort()
	enum := &MockEnumerator{List: []PortInfo{{Name: "/dev/ttyUSB0"}}}
	m, err := NewManager(NewMockSerialPortFactory(port), enum, Config{Port: "/dev/ttyUSB0"},
		WithReadTimeout(2*time.Millisecond))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.RefreshKnownPorts())
	assert.Equal(t, []PortInfo{{Name: "/dev/ttyUSB0"}}, m.KnownPorts())

	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	enum.SetPorts([]PortInfo{{Name: "/dev/ttyUSB0"}, {Name: "/dev/ttyUSB1", IsUSB: true}})
	require.NoError(t, m.RefreshKnownPorts())
	assert.Len(t, m.KnownPorts(), 2)
	assert.Equal(t, Connected, m.State(), "refresh must not touch the connection")

	enum.Err = errors.New("sysfs unavailable")
	assert.Error(t, m.RefreshKnownPorts())
	assert.Len(t, m.KnownPorts(), 2, "failed refresh keeps the previous list")
}

func TestManager_Close(t *testing.T) {
	port := NewTestableSerialPort()
	m, err := NewManager(NewMockSerialPortFactory(port), &MockEnumerator{}, Config{Port: "p"},
		WithReadTimeout(2*time.Millisecond))
	require.NoError(t, err)

	_, events := m.Subscribe()
	require.True(t, m.Connect(""))
	waitState(t, m, Connected)

	require.NoError(t, m.Close())
	assert.True(t, port.IsClosed())
	assert.Equal(t, Disconnected, m.State())
	assert.False(t, m.Connect(""))

	var got []State
	for s := range events {
		got = append(got, s)
	}
	assert.Equal(t, []State{Connecting, Connected, Disconnecting, Disconnected}, got)
	require.NoError(t, m.Close())
}

func TestManager_CloseWhileDisconnected(t *testing.T) {
	m, err := NewManager(NewMockSerialPortFactory(NewTestableSerialPort()), &MockEnumerator{}, Config{Port: "p"})
	require.NoError(t, err)

	_, events := m.Subscribe()
	require.NoError(t, m.Close())
	assert.Equal(t, Disconnected, m.State())

	var got []State
	for s := range events {
		got = append(got, s)
	}
	assert.Empty(t, got)
}
