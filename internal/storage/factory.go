package storage

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Provider type names accepted by the factory
const (
	TypeMemory = "memory"
	TypeLocal  = "local"
	TypeS3     = "s3"
	TypeGCS    = "gcs"
)

// Status reports whether a provider type can currently be used
type Status struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Factory creates storage providers and remembers which types failed to
// initialize
type Factory struct {
	mu          sync.RWMutex
	custom      map[string]func() Provider
	unavailable map[string]string
	logger      *zap.Logger
}

// NewFactory creates a new storage factory
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		custom:      make(map[string]func() Provider),
		unavailable: make(map[string]string),
		logger:      logger.Named("storage"),
	}
}

// Canonical maps provider aliases to their type name
func Canonical(providerType string) string {
	switch providerType {
	case "", "mem", TypeMemory:
		return TypeMemory
	case TypeLocal, "disk":
		return TypeLocal
	case TypeS3, "amazon", "aws":
		return TypeS3
	case TypeGCS, "google":
		return TypeGCS
	default:
		return providerType
	}
}

// Register adds a constructor for a custom provider type
func (f *Factory) Register(name string, ctor func() Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom[name] = ctor
}

// MarkUnavailable records why a provider type cannot be used
func (f *Factory) MarkUnavailable(providerType, reason string) {
	f.mu.Lock()
	f.unavailable[providerType] = reason
	f.mu.Unlock()
	f.logger.Warn("storage provider marked unavailable",
		zap.String("provider", providerType),
		zap.String("reason", reason))
}

// IsAvailable checks if a provider type is available
func (f *Factory) IsAvailable(providerType string) (bool, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason, unavailable := f.unavailable[Canonical(providerType)]
	return !unavailable, reason
}

// Statuses reports the availability of every known provider type
func (f *Factory) Statuses() map[string]Status {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := []string{TypeMemory, TypeLocal, TypeS3, TypeGCS}
	for name := range f.custom {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]Status, len(names))
	for _, name := range names {
		reason, unavailable := f.unavailable[name]
		out[name] = Status{Available: !unavailable, Reason: reason}
	}
	return out
}

// Create builds and initializes a provider of the given type
func (f *Factory) Create(providerType string, config map[string]string) (Provider, error) {
	providerType = Canonical(providerType)

	if ok, reason := f.IsAvailable(providerType); !ok {
		return nil, fmt.Errorf("%s provider is currently unavailable: %s", providerType, reason)
	}

	var provider Provider
	switch providerType {
	case TypeMemory:
		provider = NewMemoryStorage()
	case TypeLocal:
		provider = NewLocalStorage()
	case TypeS3:
		provider = NewAmazonS3Storage()
	case TypeGCS:
		provider = NewGoogleCloudStorage()
	default:
		f.mu.RLock()
		ctor, ok := f.custom[providerType]
		f.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unsupported storage provider type: %s", providerType)
		}
		provider = ctor()
	}

	if config == nil {
		config = map[string]string{}
	}
	if err := provider.Initialize(config); err != nil {
		f.MarkUnavailable(providerType, err.Error())
		return nil, fmt.Errorf("failed to initialize %s storage provider: %w", providerType, err)
	}

	f.logger.Info("storage provider ready", zap.String("provider", providerType))
	return provider, nil
}
