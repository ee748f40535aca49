package link

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by ReadByte outside the Connected state.
	ErrNotConnected = errors.New("not connected")
	// ErrNoDataAvailable is returned by ReadByte when the link is open but
	// nothing has arrived.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrOperationInFlight rejects configuration changes while a connection
	// is open or a transition is running.
	ErrOperationInFlight = errors.New("connection operation in flight")
	// ErrInvalidBaudRate rejects baud rates outside BaudRates.
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	// ErrNoPortSelected reports that no port name is configured, which makes
	// Connect a no-op.
	ErrNoPortSelected = errors.New("no port selected")
)

// ChannelOpenError records why a port could not be opened or closed.
type ChannelOpenError struct {
	Port string
	Op   string
	Err  error
}

func (e *ChannelOpenError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *ChannelOpenError) Unwrap() error { return e.Err }
