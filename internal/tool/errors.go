package tool

import "errors"

var (
	// ErrBusy is returned for intents that arrive while processing
	ErrBusy = errors.New("tool is processing")
	// ErrNotIdle is returned when triggering a tool that holds a result
	ErrNotIdle = errors.New("tool already holds a result; reset first")
	// ErrClosed is returned for intents after Close
	ErrClosed = errors.New("tool is closed")
	// ErrNoResult is returned when no result is available to download
	ErrNoResult = errors.New("no result available")
)
