// Package mode defines the two tool modes and the switch between them.
package mode

import (
	"fmt"
	"strings"
	"sync"
)

// Mode selects which tool is active
type Mode int

const (
	Merge Mode = iota
	Convert
)

// All lists every mode in display order
var All = []Mode{Merge, Convert}

func (m Mode) String() string {
	switch m {
	case Merge:
		return "merge"
	case Convert:
		return "convert"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Parse converts a mode name, ignoring case
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "merge":
		return Merge, nil
	case "convert":
		return Convert, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if m != Merge && m != Convert {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Switch holds the active mode. It owns no tool state; switching never
// touches either tool.
type Switch struct {
	mu     sync.RWMutex
	active Mode
}

// NewSwitch creates a switch starting in Merge mode
func NewSwitch() *Switch {
	return &Switch{active: Merge}
}

// Active returns the current mode
func (s *Switch) Active() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Set changes the active mode and returns the previous one
func (s *Switch) Set(m Mode) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.active
	s.active = m
	return prev
}
