package processors

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/presentation"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/models"
)

// PresentationContentType is the media type of .pptx files
const PresentationContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// Summary is what the inspector learns from a .pptx upload
type Summary struct {
	Slides int
	Title  string
}

// Inspector reads slide counts and titles for the file list. It is purely
// informational and never affects a result.
type Inspector struct {
	logger *zap.Logger
}

// NewInspector creates a presentation inspector
func NewInspector(logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{logger: logger.Named("inspector")}
}

// SetLicenseKey installs a unidoc metered license key. unioffice refuses to
// open documents without one.
func SetLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unidoc license: %w", err)
	}
	return nil
}

// IsPresentation reports whether a file looks like a .pptx by name or type
func IsPresentation(name, contentType string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pptx") || contentType == PresentationContentType
}

// Inspect parses data as a .pptx. ok is false when the file is not a
// presentation or cannot be parsed.
func (i *Inspector) Inspect(name, contentType string, data []byte) (summary Summary, ok bool) {
	if len(data) == 0 || !IsPresentation(name, contentType) {
		return Summary{}, false
	}

	// unioffice can panic on malformed parts
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("presentation parser panicked", zap.String("file", name), zap.Any("panic", r))
			summary, ok = Summary{}, false
		}
	}()

	ppt, err := presentation.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		i.logger.Debug("not a readable presentation", zap.String("file", name), zap.Error(err))
		return Summary{}, false
	}

	return Summary{
		Slides: len(ppt.Slides()),
		Title:  ppt.CoreProperties.Title(),
	}, true
}

// Annotate fills Slides and Title on every file the inspector can read
func (i *Inspector) Annotate(files []models.StagedFile) []models.StagedFile {
	out := make([]models.StagedFile, len(files))
	for idx, f := range files {
		if s, ok := i.Inspect(f.Name, f.ContentType, f.Content); ok {
			f.Slides = s.Slides
			f.Title = s.Title
		}
		out[idx] = f
	}
	return out
}
