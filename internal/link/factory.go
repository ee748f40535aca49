package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds how long a single read on a real port blocks.
const DefaultReadTimeout = 50 * time.Millisecond

// RealSerialPortFactory opens hardware ports through go.bug.st/serial.
type RealSerialPortFactory struct {
	ReadTimeout time.Duration
}

// NewRealSerialPortFactory returns a factory using DefaultReadTimeout.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{ReadTimeout: DefaultReadTimeout}
}

// Open opens path with the given options and applies the read timeout.
func (f *RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	timeout := f.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return port, nil
}
