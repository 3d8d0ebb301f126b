package handlers

import (
	"sync"
	"time"

	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/tool"
	"github.com/example/ppttools/internal/workspace"
)

// message types pushed to websocket clients
const (
	MsgToolState          = "tool_state"
	MsgProcessingProgress = "processing_progress"
	MsgModeChanged        = "mode_changed"
	MsgWorkspaceClosed    = "workspace_closed"
)

// ProgressInterval is how often processing progress is pushed
var ProgressInterval = 250 * time.Millisecond

// Watch forwards every tool change of ws to the hub and streams progress
// while a tool is processing
func (h *WebSocketHub) Watch(ws *workspace.Workspace) {
	for _, m := range mode.All {
		c, ok := ws.Tool(m)
		if !ok {
			continue
		}
		gate := &versionGate{}
		c.OnChange(func(snap tool.Snapshot) {
			if !gate.pass(snap.Version, func() { h.Publish(ws.ID, MsgToolState, snap) }) {
				return
			}
			if snap.State == models.StateProcessing {
				go h.streamProgress(ws.ID, c)
			}
		})
	}
}

func (h *WebSocketHub) streamProgress(workspaceID string, c *tool.Controller) {
	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()

	for range ticker.C {
		snap := c.Snapshot()
		if snap.State != models.StateProcessing {
			return
		}
		h.Publish(workspaceID, MsgProcessingProgress, map[string]interface{}{
			"mode":     snap.Mode,
			"progress": snap.Progress,
		})
	}
}

// versionGate lets snapshots through in version order, dropping any that
// arrive after a newer one
type versionGate struct {
	mu   sync.Mutex
	last uint64
}

// pass runs publish if v is newer than everything seen so far
func (g *versionGate) pass(v uint64, publish func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v <= g.last {
		return false
	}
	g.last = v
	publish()
	return true
}
