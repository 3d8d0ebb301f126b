package processors

import "errors"

// Common errors
var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrEmptyInput  = errors.New("no input files")
)
