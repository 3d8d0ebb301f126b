package selection

import (
	"fmt"
	"strings"
)

// Source says where a batch of files came from. Picker batches are
// pre-filtered by the browser; drop batches are filtered here.
type Source int

const (
	SourcePicker Source = iota
	SourceDrop
)

func (s Source) String() string {
	if s == SourceDrop {
		return "drop"
	}
	return "picker"
}

// ParseSource converts a source name; empty means picker
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "picker":
		return SourcePicker, nil
	case "drop":
		return SourceDrop, nil
	default:
		return 0, fmt.Errorf("unknown file source %q", s)
	}
}
