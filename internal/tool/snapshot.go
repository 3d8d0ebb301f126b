package tool

import (
	"time"

	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/processors"
)

// Snapshot is what the rendering layer needs to draw one tool
type Snapshot struct {
	Mode        mode.Mode         `json:"mode"`
	State       models.ToolState  `json:"state"`
	Files       []models.FileView `json:"files"`
	TotalSize   string            `json:"totalSize,omitempty"`
	Result      *models.Result    `json:"result,omitempty"`
	CanTrigger  bool              `json:"canTrigger"`
	Guidance    string            `json:"guidance,omitempty"`
	ActionLabel string            `json:"actionLabel"`
	Accept      string            `json:"accept"`
	Multiple    bool              `json:"multiple"`
	LastError   string            `json:"lastError,omitempty"`
	Progress    float64           `json:"progress,omitempty"`
	// Version grows with every transition; a lower one is stale
	Version uint64 `json:"version"`
}

func (c *Controller) snapshotLocked() Snapshot {
	files := c.sel.Files()
	views := make([]models.FileView, len(files))
	var total int64
	for i, f := range files {
		views[i] = models.ViewOf(f)
		total += f.Size
	}

	snap := Snapshot{
		Mode:        c.policy.Mode,
		State:       c.state,
		Files:       views,
		ActionLabel: c.policy.ActionLabel(len(files)),
		Accept:      c.policy.Accept.String(),
		Multiple:    c.policy.MaxFiles != 1,
		LastError:   c.lastError,
		Version:     c.version,
	}
	if total > 0 {
		snap.TotalSize = models.FormatBytes(total, 2)
	}

	switch c.state {
	case models.StateIdle:
		n := len(files)
		snap.CanTrigger = !c.closed && c.policy.Satisfied(n)
		if n > 0 && !c.policy.Satisfied(n) {
			snap.Guidance = c.policy.Guidance
		}
	case models.StateProcessing:
		snap.Progress = processors.Progress(time.Since(c.startedAt), c.proc.Delay())
	case models.StateDone:
		r := *c.result
		snap.Result = &r
	}
	return snap
}
