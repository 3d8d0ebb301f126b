// Package selection holds the files staged in one tool instance.
package selection

import (
	"github.com/example/ppttools/internal/models"
)

// Policy decides how a selection absorbs new files
type Policy int

const (
	// Multi keeps every file once, keyed by name, in first-seen order
	Multi Policy = iota
	// Single keeps only the newest file
	Single
)

func (p Policy) String() string {
	if p == Single {
		return "single"
	}
	return "multi"
}

// Selection is an ordered set of staged files. It is not safe for
// concurrent use; the owning controller serializes access.
type Selection struct {
	policy Policy
	files  []models.StagedFile
}

// New creates an empty selection
func New(policy Policy) *Selection {
	return &Selection{policy: policy}
}

// Policy returns the selection policy
func (s *Selection) Policy() Policy {
	return s.policy
}

// Add stages files and returns how many were taken.
//
// Multi drops any file whose name is already staged, including repeats
// inside the same batch. Single replaces the selection with the first file
// of the batch; an empty batch changes nothing.
func (s *Selection) Add(files []models.StagedFile) int {
	if len(files) == 0 {
		return 0
	}

	if s.policy == Single {
		s.files = []models.StagedFile{files[0]}
		return 1
	}

	seen := make(map[string]struct{}, len(s.files)+len(files))
	for _, f := range s.files {
		seen[f.Name] = struct{}{}
	}

	added := 0
	for _, f := range files {
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		s.files = append(s.files, f)
		added++
	}
	return added
}

// Remove drops the file with the given name, if present
func (s *Selection) Remove(name string) bool {
	for i, f := range s.files {
		if f.Name == name {
			s.files = append(s.files[:i:i], s.files[i+1:]...)
			return true
		}
	}
	return false
}

// Reset clears the selection
func (s *Selection) Reset() {
	s.files = nil
}

// Len returns the number of staged files
func (s *Selection) Len() int {
	return len(s.files)
}

// Files returns a copy of the staged files in order
func (s *Selection) Files() []models.StagedFile {
	out := make([]models.StagedFile, len(s.files))
	copy(out, s.files)
	return out
}

// Names returns the staged file names in order
func (s *Selection) Names() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name
	}
	return names
}
