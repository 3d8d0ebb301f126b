// Package lease hands out revocable references to result content.
//
// Every Create must be paired with exactly one Revoke. The Manager enforces
// that pairing on top of any storage.Provider and keeps counters so leaks
// and double releases are observable.
package lease

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/ppttools/internal/storage"
)

// Ref identifies a live lease
type Ref string

var (
	// ErrNotLive is returned for refs that were never created or are already revoked
	ErrNotLive = errors.New("lease is not live")
	// ErrNoURL is returned when the backend cannot mint external links
	ErrNoURL = errors.New("lease backend has no external urls")
)

// Leaser is the create/revoke capability the tools depend on
type Leaser interface {
	Create(ctx context.Context, name, contentType string, content io.Reader, size int64) (Ref, error)
	Revoke(ctx context.Context, ref Ref) error
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
	URL(ctx context.Context, ref Ref, expiry time.Duration) (string, error)
}

// Stats counts lease activity since the manager was created
type Stats struct {
	Created int64 `json:"created"`
	Revoked int64 `json:"revoked"`
	Live    int   `json:"live"`
}

// Manager implements Leaser over a storage provider
type Manager struct {
	provider storage.Provider
	logger   *zap.Logger

	mu   sync.Mutex
	live map[Ref]string // ref -> object name, for logs

	created atomic.Int64
	revoked atomic.Int64
}

// NewManager creates a lease manager storing content in provider
func NewManager(provider storage.Provider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		logger:   logger.Named("lease"),
		live:     make(map[Ref]string),
	}
}

// Create stores content and returns a new live lease
func (m *Manager) Create(ctx context.Context, name, contentType string, content io.Reader, size int64) (Ref, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id, err := m.provider.Store(ctx, name, content, size, map[string]string{
		storage.MetaFileName:    name,
		storage.MetaContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("create lease: %w", err)
	}

	ref := Ref(id)
	m.mu.Lock()
	m.live[ref] = name
	m.mu.Unlock()
	m.created.Add(1)

	m.logger.Debug("lease created", zap.String("lease", string(ref)), zap.String("name", name), zap.Int64("size", size))
	return ref, nil
}

// Revoke releases a live lease. A second Revoke of the same ref returns
// ErrNotLive without touching storage.
func (m *Manager) Revoke(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	name, ok := m.live[ref]
	if ok {
		delete(m.live, ref)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("revoke of a lease that is not live", zap.String("lease", string(ref)))
		return fmt.Errorf("%s: %w", ref, ErrNotLive)
	}
	m.revoked.Add(1)

	if err := m.provider.Delete(ctx, string(ref)); err != nil {
		// the lease is gone either way; storage leftovers are only logged
		m.logger.Error("failed to delete leased object", zap.String("lease", string(ref)), zap.Error(err))
		return fmt.Errorf("revoke lease: %w", err)
	}

	m.logger.Debug("lease revoked", zap.String("lease", string(ref)), zap.String("name", name))
	return nil
}

// Open reads the content behind a live lease
func (m *Manager) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if !m.IsLive(ref) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotLive)
	}

	rc, _, err := m.provider.Retrieve(ctx, string(ref))
	if err != nil {
		return nil, fmt.Errorf("open lease: %w", err)
	}
	return rc, nil
}

// URL returns a temporary external link for a live lease
func (m *Manager) URL(ctx context.Context, ref Ref, expiry time.Duration) (string, error) {
	if !m.IsLive(ref) {
		return "", fmt.Errorf("%s: %w", ref, ErrNotLive)
	}

	minutes := int(expiry / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	url, err := m.provider.GetSignedURL(ctx, string(ref), minutes, "read")
	if errors.Is(err, storage.ErrSignedURLUnsupported) {
		return "", ErrNoURL
	}
	if err != nil {
		return "", fmt.Errorf("lease url: %w", err)
	}
	return url, nil
}

// IsLive reports whether ref has been created and not yet revoked
func (m *Manager) IsLive(ref Ref) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[ref]
	return ok
}

// Stats returns lease counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	live := len(m.live)
	m.mu.Unlock()
	return Stats{
		Created: m.created.Load(),
		Revoked: m.revoked.Load(),
		Live:    live,
	}
}

// RevokeAll releases every live lease, used at shutdown
func (m *Manager) RevokeAll(ctx context.Context) int {
	m.mu.Lock()
	refs := make([]Ref, 0, len(m.live))
	for ref := range m.live {
		refs = append(refs, ref)
	}
	m.mu.Unlock()

	n := 0
	for _, ref := range refs {
		if err := m.Revoke(ctx, ref); !errors.Is(err, ErrNotLive) {
			n++
		}
	}
	return n
}
