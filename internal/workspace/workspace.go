// Package workspace composes one mode switch and one controller per mode
// into a user-facing session, and keeps the registry of live sessions.
package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/tool"
)

// Workspace is one user's pair of tools plus the mode switch between them
type Workspace struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	Switch *mode.Switch
	tools  map[mode.Mode]*tool.Controller

	mu       sync.Mutex
	lastSeen time.Time
}

// View is the rendering state of a whole workspace
type View struct {
	ID         string                   `json:"id"`
	ActiveMode mode.Mode                `json:"activeMode"`
	CreatedAt  time.Time                `json:"createdAt"`
	Tools      map[string]tool.Snapshot `json:"tools"`
}

// Tool returns the controller of m
func (w *Workspace) Tool(m mode.Mode) (*tool.Controller, bool) {
	c, ok := w.tools[m]
	return c, ok
}

// Active returns the controller of the active mode
func (w *Workspace) Active() *tool.Controller {
	return w.tools[w.Switch.Active()]
}

// View returns the rendering state of every tool
func (w *Workspace) View() View {
	v := View{
		ID:         w.ID,
		ActiveMode: w.Switch.Active(),
		CreatedAt:  w.CreatedAt,
		Tools:      make(map[string]tool.Snapshot, len(w.tools)),
	}
	for m, c := range w.tools {
		v.Tools[m.String()] = c.Snapshot()
	}
	return v
}

// Touch marks the workspace as used now
func (w *Workspace) Touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

// LastSeen returns when the workspace was last used
func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Close tears down both tools, releasing their leases
func (w *Workspace) Close(ctx context.Context) {
	for _, m := range mode.All {
		if c, ok := w.tools[m]; ok {
			c.Close(ctx)
		}
	}
}
