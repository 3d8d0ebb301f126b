// Package storage provides the backends that hold leased result content.
// The in-memory provider mirrors a browser blob store; local disk, Amazon S3
// and Google Cloud Storage serve deployments that hand out real download links.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Provider defines the interface for all storage implementations
type Provider interface {
	// Initialize sets up the storage provider with configuration
	Initialize(config map[string]string) error

	// Store saves content and returns the unique identifier of the stored object
	Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error)

	// Retrieve opens a stored object together with its metadata
	Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error)

	// Delete removes a stored object
	Delete(ctx context.Context, id string) error

	// List returns the objects whose name starts with prefix
	List(ctx context.Context, prefix string) ([]FileInfo, error)

	// GetSignedURL returns a temporary link to an object.
	// Providers without external links return ErrSignedURLUnsupported.
	GetSignedURL(ctx context.Context, id string, expiryMinutes int, operation string) (string, error)
}

// FileInfo represents metadata about a stored object
type FileInfo struct {
	ID          string
	Name        string
	Size        int64
	ContentType string
	ModifiedAt  int64
	Metadata    map[string]string
}

// Metadata keys written alongside every object
const (
	MetaFileName    = "filename"
	MetaContentType = "contentType"
)

var (
	ErrNotFound             = errors.New("object not found")
	ErrSignedURLUnsupported = errors.New("signed urls not supported by this provider")
)

// objectID builds a collision-free object name that still carries the
// original file name for humans browsing the bucket.
func objectID(prefix, name string) string {
	return prefix + uuid.NewString() + "-" + sanitizeName(name)
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "object"
	}
	return strings.ReplaceAll(base, " ", "_")
}
