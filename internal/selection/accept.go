package selection

import (
	"strings"

	"github.com/example/ppttools/internal/models"
)

// DefaultPresentationAccept matches .pptx uploads
const DefaultPresentationAccept = ".pptx,application/vnd.openxmlformats-officedocument.presentationml.presentation"

// Accept is an allow-list of file patterns in the format of an HTML
// accept attribute: extension suffixes and media types, comma separated.
type Accept struct {
	patterns []string
}

// ParseAccept parses a comma separated accept descriptor. Blank entries are
// ignored; an empty descriptor accepts everything.
func ParseAccept(descriptor string) Accept {
	var patterns []string
	for _, p := range strings.Split(descriptor, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return Accept{patterns: patterns}
}

// String returns the descriptor in canonical form
func (a Accept) String() string {
	return strings.Join(a.patterns, ",")
}

// Match reports whether a file with name and contentType passes the filter.
// A pattern matches when the content type contains it (leading dot removed)
// or when the name ends with it, ignoring case.
func (a Accept) Match(name, contentType string) bool {
	if len(a.patterns) == 0 {
		return true
	}

	lowerName := strings.ToLower(name)
	for _, p := range a.patterns {
		if contentType != "" && strings.Contains(contentType, strings.TrimPrefix(p, ".")) {
			return true
		}
		if strings.HasSuffix(lowerName, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Filter returns the files that pass the filter, preserving order
func (a Accept) Filter(files []models.StagedFile) []models.StagedFile {
	out := make([]models.StagedFile, 0, len(files))
	for _, f := range files {
		if a.Match(f.Name, f.ContentType) {
			out = append(out, f)
		}
	}
	return out
}
