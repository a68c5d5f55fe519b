package model

import (
	"fmt"
	"strings"
)

// PortState is the three-way classification of a probed TCP port.
type PortState int

const (
	// Filtered means no conclusive answer arrived: a timeout, a dropped
	// packet, or an error that cannot be attributed to the port itself.
	Filtered PortState = iota

	// Closed means the host actively refused the connection (RST).
	Closed

	// Open means something accepted the handshake.
	Open
)

// String returns the display name used in console output.
func (s PortState) String() string {
	switch s {
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	case Filtered:
		return "Filtered"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states are stored as
// names in JSON reports and in the history database.
func (s PortState) MarshalText() ([]byte, error) {
	switch s {
	case Open, Closed, Filtered:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid port state %d", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PortState) UnmarshalText(text []byte) error {
	state, err := ParsePortState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParsePortState converts a state name (case-insensitive) to a PortState.
func ParsePortState(name string) (PortState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "open":
		return Open, nil
	case "closed":
		return Closed, nil
	case "filtered":
		return Filtered, nil
	default:
		return Filtered, fmt.Errorf("unknown port state %q", name)
	}
}
