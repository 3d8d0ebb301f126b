// Package tool implements the per-mode controller that stages files, runs
// one processing call at a time and owns the resulting lease.
//
// A controller is always in exactly one of three states:
//
//	Idle        selection may be edited, trigger allowed when the policy is met
//	Processing  selection frozen, one service call in flight
//	Done        result held, selection cleared
//
// Every result lease the controller receives is revoked exactly once: when
// new files supersede it, on Reset, or on Close.
package tool

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/processors"
	"github.com/example/ppttools/internal/selection"
)

// Processor runs the merge and convert operations
type Processor interface {
	MergeMany(ctx context.Context, files []models.StagedFile) (*models.Result, error)
	ConvertOne(ctx context.Context, file models.StagedFile) (*models.Result, error)
	Delay() time.Duration
}

// Submitter queues processing tasks. processors.WorkerPool implements it.
type Submitter interface {
	Submit(task *processors.Task) error
}

// Option configures a Controller
type Option func(*Controller)

// WithSubmitter runs service calls on a worker pool instead of a goroutine
// per call
func WithSubmitter(s Submitter) Option {
	return func(c *Controller) { c.submitter = s }
}

// WithInspector annotates added files with slide counts and titles
func WithInspector(i *processors.Inspector) Option {
	return func(c *Controller) { c.inspector = i }
}

// WithLogger sets the controller logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller is the state machine of one tool instance
type Controller struct {
	policy    Policy
	proc      Processor
	leases    lease.Leaser
	submitter Submitter
	inspector *processors.Inspector
	logger    *zap.Logger

	mu        sync.Mutex
	state     models.ToolState
	sel       *selection.Selection
	result    *models.Result
	lastError string
	closed    bool
	version   uint64

	// set while Processing
	cancel    context.CancelFunc
	inflight  *call
	startedAt time.Time
	taskID    string

	observers []func(Snapshot)
}

// New creates an idle controller
func New(policy Policy, proc Processor, leases lease.Leaser, opts ...Option) *Controller {
	c := &Controller{
		policy: policy,
		proc:   proc,
		leases: leases,
		logger: zap.NewNop(),
		state:  models.StateIdle,
		sel:    selection.New(policy.Selection),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.Stringer("mode", policy.Mode))
	return c
}

// Policy returns the controller policy
func (c *Controller) Policy() Policy {
	return c.policy
}

// OnChange registers fn to be called with a snapshot after every transition.
// fn runs outside the controller lock and may call back into it.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// AddFiles stages a batch and returns how many files were taken. Drop
// batches are filtered by the accept list first. Any held result is
// released and the controller returns to Idle.
func (c *Controller) AddFiles(ctx context.Context, files []models.StagedFile, source selection.Source) (int, error) {
	if source == selection.SourceDrop {
		files = c.policy.Accept.Filter(files)
	}
	if c.inspector != nil {
		files = c.inspector.Annotate(files)
	}

	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}

	stale := c.takeResultLocked()
	if stale != nil {
		// the done view supersedes the old selection
		c.sel.Reset()
	}
	added := c.sel.Add(files)
	c.state = models.StateIdle
	c.lastError = ""
	snap := c.transitionLocked()
	c.mu.Unlock()

	c.revoke(ctx, stale)
	c.logger.Debug("files added", zap.Int("offered", len(files)), zap.Int("added", added), zap.Stringer("source", source))
	c.notify(snap)
	return added, nil
}

// RemoveFile unstages name. Removing while Done changes nothing.
func (c *Controller) RemoveFile(name string) (bool, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	if c.state == models.StateDone {
		c.mu.Unlock()
		return false, nil
	}

	removed := c.sel.Remove(name)
	c.lastError = ""
	snap := c.transitionLocked()
	c.mu.Unlock()

	if removed {
		c.notify(snap)
	}
	return removed, nil
}

// Trigger starts processing the staged files. When the policy is not met it
// returns the guidance message and stays Idle.
func (c *Controller) Trigger() (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	switch c.state {
	case models.StateProcessing:
		c.mu.Unlock()
		return "", ErrBusy
	case models.StateDone:
		c.mu.Unlock()
		return "", ErrNotIdle
	}
	if !c.policy.Satisfied(c.sel.Len()) {
		c.mu.Unlock()
		return c.policy.Guidance, nil
	}

	files := c.sel.Files()
	ctx, cancel := context.WithCancel(context.Background())
	cl := newCall()
	c.state = models.StateProcessing
	c.cancel = cancel
	c.inflight = cl
	c.startedAt = time.Now()
	c.taskID = uuid.NewString()
	c.lastError = ""
	taskID := c.taskID
	snap := c.transitionLocked()
	c.mu.Unlock()

	c.logger.Info("processing triggered", zap.String("task", taskID), zap.Strings("files", names(files)))
	c.notify(snap)

	task := processors.NewTask(ctx, taskID, func(ctx context.Context) (*models.Result, error) {
		return c.run(ctx, files)
	})

	if c.submitter == nil {
		go func() {
			result, err := task.Run(ctx)
			c.complete(cl, result, err)
		}()
		return "", nil
	}

	if err := c.submitter.Submit(task); err != nil {
		c.complete(cl, nil, err)
		return "", err
	}
	go func() {
		select {
		case result := <-task.Result:
			c.complete(cl, result, nil)
		case err := <-task.Error:
			c.complete(cl, nil, err)
		}
	}()
	return "", nil
}

func (c *Controller) run(ctx context.Context, files []models.StagedFile) (*models.Result, error) {
	if c.sel.Policy() == selection.Single {
		if len(files) == 0 {
			return nil, processors.ErrEmptyInput
		}
		return c.proc.ConvertOne(ctx, files[0])
	}
	return c.proc.MergeMany(ctx, files)
}

// complete applies the outcome of cl. Results that arrive after Close are
// revoked immediately.
func (c *Controller) complete(cl *call, result *models.Result, err error) {
	c.mu.Lock()
	if c.closed || c.inflight != cl {
		c.mu.Unlock()
		if result != nil {
			c.logger.Info("discarding result of torn down tool", zap.String("lease", result.Lease))
			c.revoke(context.Background(), result)
		}
		return
	}

	c.cancel()
	c.cancel = nil

	if err != nil {
		c.state = models.StateIdle
		c.lastError = err.Error()
		c.logger.Warn("processing failed", zap.String("task", c.taskID), zap.Error(err))
	} else {
		c.state = models.StateDone
		c.result = result
		c.sel.Reset()
		c.logger.Info("processing done", zap.String("task", c.taskID), zap.String("fileName", result.FileName))
	}
	snap := c.transitionLocked()
	c.mu.Unlock()

	// observers see the outcome before waiters wake
	c.notify(snap)

	c.mu.Lock()
	if c.inflight == cl {
		c.inflight = nil
	}
	c.mu.Unlock()
	cl.finish()
}

// Reset releases any result, clears the selection and returns to Idle
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	stale := c.takeResultLocked()
	c.sel.Reset()
	c.state = models.StateIdle
	c.lastError = ""
	snap := c.transitionLocked()
	c.mu.Unlock()

	c.revoke(ctx, stale)
	c.notify(snap)
	return nil
}

// Close tears the controller down. An in-flight call is cancelled and the
// held result, if any, is released. Close is idempotent.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.inflight != nil {
		c.inflight.finish()
		c.inflight = nil
	}
	stale := c.takeResultLocked()
	c.sel.Reset()
	c.state = models.StateIdle
	c.observers = nil
	c.mu.Unlock()

	c.revoke(ctx, stale)
	c.logger.Debug("tool closed")
}

// Wait blocks until the controller is not processing or ctx ends
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	cl := c.inflight
	c.mu.Unlock()
	if cl == nil {
		return nil
	}

	select {
	case <-cl.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the held result, if any
func (c *Controller) Result() (*models.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil, false
	}
	r := *c.result
	return &r, true
}

// OpenResult opens the held result for download
func (c *Controller) OpenResult(ctx context.Context) (io.ReadCloser, *models.Result, error) {
	c.mu.Lock()
	if c.state != models.StateDone || c.result == nil {
		c.mu.Unlock()
		return nil, nil, ErrNoResult
	}
	r := *c.result
	c.mu.Unlock()

	rc, err := c.leases.Open(ctx, lease.Ref(r.Lease))
	if err != nil {
		return nil, nil, fmt.Errorf("open result: %w", err)
	}
	return rc, &r, nil
}

// ResultURL returns a temporary external link to the held result
func (c *Controller) ResultURL(ctx context.Context, expiry time.Duration) (string, error) {
	r, ok := c.Result()
	if !ok {
		return "", ErrNoResult
	}
	return c.leases.URL(ctx, lease.Ref(r.Lease), expiry)
}

// Snapshot returns the current rendering state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// transitionLocked bumps the version and snapshots the new state
func (c *Controller) transitionLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) editableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.state == models.StateProcessing {
		return ErrBusy
	}
	return nil
}

func (c *Controller) takeResultLocked() *models.Result {
	r := c.result
	c.result = nil
	return r
}

func (c *Controller) revoke(ctx context.Context, r *models.Result) {
	if r == nil {
		return
	}
	if err := c.leases.Revoke(ctx, lease.Ref(r.Lease)); err != nil {
		c.logger.Error("failed to revoke result lease", zap.String("lease", r.Lease), zap.Error(err))
	}
}

func (c *Controller) notify(snap Snapshot) {
	c.mu.Lock()
	observers := make([]func(Snapshot), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// call tracks one in-flight service call
type call struct {
	done chan struct{}
	once sync.Once
}

func newCall() *call {
	return &call{done: make(chan struct{})}
}

func (cl *call) finish() {
	cl.once.Do(func() { close(cl.done) })
}

func names(files []models.StagedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}
