package workspace

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/tool"
)

var (
	// ErrNotFound is returned for unknown workspaces and for workspaces
	// owned by someone else
	ErrNotFound = errors.New("workspace not found")
	// ErrClosed is returned after the registry shut down
	ErrClosed = errors.New("workspace registry is closed")
)

// Config controls workspace construction and expiry
type Config struct {
	// TTL is how long an unused workspace lives; zero disables expiry
	TTL    time.Duration
	Accept selection.Accept
}

// Registry owns every live workspace
type Registry struct {
	proc     tool.Processor
	leases   lease.Leaser
	toolOpts []tool.Option
	config   Config
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.RWMutex
	workspaces map[string]*Workspace
	onCreate   []func(*Workspace)
	closed     bool
}

// NewRegistry creates a registry whose tools run on proc and lease results
// from leases
func NewRegistry(proc tool.Processor, leases lease.Leaser, config Config, logger *zap.Logger, toolOpts ...tool.Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		proc:       proc,
		leases:     leases,
		toolOpts:   toolOpts,
		config:     config,
		logger:     logger.Named("workspaces"),
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// OnCreate registers fn to run for every new workspace before it is
// returned to the caller
func (r *Registry) OnCreate(fn func(*Workspace)) {
	r.mu.Lock()
	r.onCreate = append(r.onCreate, fn)
	r.mu.Unlock()
}

// Create builds a new workspace for owner
func (r *Registry) Create(owner string) (*Workspace, error) {
	now := r.now()
	ws := &Workspace{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: now,
		Switch:    mode.NewSwitch(),
		tools:     make(map[mode.Mode]*tool.Controller, len(mode.All)),
		lastSeen:  now,
	}

	logger := r.logger.With(zap.String("workspace", ws.ID))
	opts := append(append([]tool.Option{}, r.toolOpts...), tool.WithLogger(logger))
	for _, m := range mode.All {
		ws.tools[m] = tool.New(tool.PolicyFor(m, r.config.Accept), r.proc, r.leases, opts...)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.workspaces[ws.ID] = ws
	hooks := make([]func(*Workspace), len(r.onCreate))
	copy(hooks, r.onCreate)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(ws)
	}

	logger.Info("workspace created", zap.String("owner", owner))
	return ws, nil
}

// Get returns the workspace id owned by owner and marks it used
func (r *Registry) Get(id, owner string) (*Workspace, error) {
	r.mu.RLock()
	ws, ok := r.workspaces[id]
	r.mu.RUnlock()
	if !ok || ws.Owner != owner {
		return nil, ErrNotFound
	}
	ws.Touch(r.now())
	return ws, nil
}

// Delete tears down and forgets a workspace
func (r *Registry) Delete(ctx context.Context, id, owner string) error {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	if !ok || ws.Owner != owner {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.workspaces, id)
	r.mu.Unlock()

	ws.Close(ctx)
	r.logger.Info("workspace deleted", zap.String("workspace", id))
	return nil
}

// List returns the ids of owner's workspaces, oldest first
func (r *Registry) List(owner string) []string {
	r.mu.RLock()
	var owned []*Workspace
	for _, ws := range r.workspaces {
		if ws.Owner == owner {
			owned = append(owned, ws)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.Before(owned[j].CreatedAt) })
	ids := make([]string, len(owned))
	for i, ws := range owned {
		ids[i] = ws.ID
	}
	return ids
}

// Len returns the number of live workspaces
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

// Sweep tears down workspaces unused for longer than the TTL and returns
// how many were removed
func (r *Registry) Sweep(ctx context.Context) int {
	if r.config.TTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.config.TTL)

	r.mu.Lock()
	var expired []*Workspace
	for id, ws := range r.workspaces {
		if ws.LastSeen().Before(cutoff) {
			expired = append(expired, ws)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range expired {
		ws.Close(ctx)
		r.logger.Info("workspace expired", zap.String("workspace", ws.ID), zap.Time("lastSeen", ws.LastSeen()))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is cancelled
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.config.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				r.logger.Debug("sweep finished", zap.Int("expired", n), zap.Int("live", r.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close tears down every workspace. Later Creates fail with ErrClosed.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	all := make([]*Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		all = append(all, ws)
	}
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range all {
		ws.Close(ctx)
	}
	r.logger.Info("workspaces closed", zap.Int("count", len(all)))
}
