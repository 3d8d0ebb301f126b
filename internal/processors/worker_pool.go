package processors

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ppttools/internal/models"
)

// Task is one queued processing call
type Task struct {
	ID        string
	Run       func(ctx context.Context) (*models.Result, error)
	Result    chan *models.Result
	Error     chan error
	Timestamp time.Time

	ctx context.Context
}

// NewTask creates a task whose Run receives ctx
func NewTask(ctx context.Context, id string, run func(ctx context.Context) (*models.Result, error)) *Task {
	return &Task{
		ID:        id,
		Run:       run,
		Result:    make(chan *models.Result, 1),
		Error:     make(chan error, 1),
		Timestamp: time.Now(),
		ctx:       ctx,
	}
}

// WorkerPool runs tasks on a fixed number of goroutines
type WorkerPool struct {
	tasks   chan *Task
	workers int
	wg      sync.WaitGroup
	quit    chan struct{}
	logger  *zap.Logger

	mu      sync.RWMutex
	active  map[string]*Task
	stopped bool
}

// NewWorkerPool creates and starts a worker pool
func NewWorkerPool(workers, queueSize int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &WorkerPool{
		tasks:   make(chan *Task, queueSize),
		workers: workers,
		quit:    make(chan struct{}),
		active:  make(map[string]*Task),
		logger:  logger.Named("workers"),
	}
	pool.start()
	return pool
}

func (p *WorkerPool) start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queueSize", cap(p.tasks)))
}

// Stop waits for running tasks, then fails every task still queued with
// ErrPoolStopped
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()

	for {
		select {
		case task := <-p.tasks:
			p.finish(task)
			task.Error <- ErrPoolStopped
		default:
			p.logger.Info("worker pool stopped")
			return
		}
	}
}

// Submit queues a task without blocking
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}

	p.active[task.ID] = task
	select {
	case p.tasks <- task:
		return nil
	default:
		delete(p.active, task.ID)
		return ErrQueueFull
	}
}

// Stats returns the number of tracked tasks and the number waiting in the queue
func (p *WorkerPool) Stats() (active, queued int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active), len(p.tasks)
}

func (p *WorkerPool) finish(task *Task) {
	p.mu.Lock()
	delete(p.active, task.ID)
	p.mu.Unlock()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.tasks:
			p.logger.Debug("processing task", zap.Int("worker", id), zap.String("task", task.ID))

			ctx := task.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := task.Run(ctx)
			p.finish(task)

			if err != nil {
				p.logger.Warn("task failed", zap.Int("worker", id), zap.String("task", task.ID), zap.Error(err))
				task.Error <- err
			} else {
				p.logger.Debug("task completed", zap.Int("worker", id), zap.String("task", task.ID))
				task.Result <- result
			}
		case <-p.quit:
			return
		}
	}
}
