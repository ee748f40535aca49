package link

import "fmt"

// State is a step of the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for c := Disconnected; c <= Failed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown link state %q", b)
}

// ConnectionAllowed reports whether a connect may start from s.
func (s State) ConnectionAllowed() bool {
	return s == Disconnected || s == Failed
}

// DisconnectionAllowed reports whether a disconnect may start from s.
func (s State) DisconnectionAllowed() bool {
	return s == Connected
}
