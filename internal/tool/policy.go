package tool

import (
	"fmt"

	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/selection"
)

// Policy is the per-mode configuration of a controller
type Policy struct {
	Mode      mode.Mode
	Selection selection.Policy
	MinFiles  int
	MaxFiles  int // 0 means unbounded
	Guidance  string
	Accept    selection.Accept
}

// MergePolicy needs at least two distinct files
func MergePolicy(accept selection.Accept) Policy {
	return Policy{
		Mode:      mode.Merge,
		Selection: selection.Multi,
		MinFiles:  2,
		Guidance:  "Please add at least two files to merge.",
		Accept:    accept,
	}
}

// ConvertPolicy needs exactly one file
func ConvertPolicy(accept selection.Accept) Policy {
	return Policy{
		Mode:      mode.Convert,
		Selection: selection.Single,
		MinFiles:  1,
		MaxFiles:  1,
		Guidance:  "Please select a file to convert.",
		Accept:    accept,
	}
}

// PolicyFor returns the policy of m
func PolicyFor(m mode.Mode, accept selection.Accept) Policy {
	if m == mode.Convert {
		return ConvertPolicy(accept)
	}
	return MergePolicy(accept)
}

// Satisfied reports whether n staged files allow a trigger
func (p Policy) Satisfied(n int) bool {
	if n < p.MinFiles {
		return false
	}
	return p.MaxFiles == 0 || n <= p.MaxFiles
}

// ActionLabel is the text of the trigger button for n staged files
func (p Policy) ActionLabel(n int) string {
	if p.Mode == mode.Convert {
		return "Convert to PDF"
	}
	return fmt.Sprintf("Merge %d Files", n)
}
