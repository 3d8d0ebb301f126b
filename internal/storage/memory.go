package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data       []byte
	metadata   map[string]string
	modifiedAt time.Time
}

// MemoryStorage keeps objects in process memory
type MemoryStorage struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string]*memoryObject
}

// NewMemoryStorage creates a new in-memory storage provider
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]*memoryObject)}
}

// Initialize accepts an optional "prefix"
func (m *MemoryStorage) Initialize(config map[string]string) error {
	m.prefix = config["prefix"]
	return nil
}

// Store copies content into memory
func (m *MemoryStorage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, content); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	id := objectID(m.prefix, name)
	m.mu.Lock()
	m.objects[id] = &memoryObject{data: buf.Bytes(), metadata: meta, modifiedAt: time.Now()}
	m.mu.Unlock()
	return id, nil
}

// Retrieve returns a reader over the stored bytes. The reader stays valid
// after the object is deleted.
func (m *MemoryStorage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	m.mu.RLock()
	obj, ok := m.objects[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	meta := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		meta[k] = v
	}
	return io.NopCloser(bytes.NewReader(obj.data)), meta, nil
}

// Delete removes an object from memory
func (m *MemoryStorage) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.objects, id)
	return nil
}

// List returns objects whose id starts with the storage prefix plus prefix
func (m *MemoryStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	full := m.prefix + prefix

	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []FileInfo
	for id, obj := range m.objects {
		if !strings.HasPrefix(id, full) {
			continue
		}
		files = append(files, FileInfo{
			ID:          id,
			Name:        obj.metadata[MetaFileName],
			Size:        int64(len(obj.data)),
			ContentType: obj.metadata[MetaContentType],
			ModifiedAt:  obj.modifiedAt.Unix(),
			Metadata:    obj.metadata,
		})
	}
	return files, nil
}

// GetSignedURL is not available for memory objects; they are served by the
// download route instead.
func (m *MemoryStorage) GetSignedURL(ctx context.Context, id string, expiryMinutes int, operation string) (string, error) {
	return "", ErrSignedURLUnsupported
}

// Len returns the number of stored objects
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
