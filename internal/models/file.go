// Package models provides data structures for the presentation tools application
package models

import (
	"strconv"
	"time"
)

// StagedFile is one user-selected input waiting in a tool's selection.
// Name is the unique key within a selection.
type StagedFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`

	// Filled by the presentation inspector when the upload parses as .pptx
	Slides int    `json:"slides,omitempty"`
	Title  string `json:"title,omitempty"`

	// Raw uploaded bytes. Never inspected by the tools themselves.
	Content []byte `json:"-"`
}

// NewStagedFile builds a staged file from raw content
func NewStagedFile(name, contentType string, content []byte) StagedFile {
	return StagedFile{
		Name:        name,
		Size:        int64(len(content)),
		ContentType: contentType,
		Content:     content,
	}
}

// Result is the output of a completed (simulated) operation.
// FileName is only a suggestion for the download and says nothing about the
// actual format of the leased content.
type Result struct {
	Lease       string    `json:"lease"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToolState is the discriminated state of a tool controller
type ToolState string

const (
	StateIdle       ToolState = "idle"
	StateProcessing ToolState = "processing"
	StateDone       ToolState = "done"
)

// FileView is the rendering view of a staged file
type FileView struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
	ContentType   string `json:"contentType,omitempty"`
	Slides        int    `json:"slides,omitempty"`
	Title         string `json:"title,omitempty"`
}

// ViewOf returns the rendering view of f
func ViewOf(f StagedFile) FileView {
	return FileView{
		Name:          f.Name,
		Size:          f.Size,
		SizeFormatted: FormatBytes(f.Size, 2),
		ContentType:   f.ContentType,
		Slides:        f.Slides,
		Title:         f.Title,
	}
}

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count in base-1024 units with at most
// decimals fractional digits, trailing zeros dropped.
func FormatBytes(bytes int64, decimals int) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	if decimals < 0 {
		decimals = 0
	}

	i := 0
	value := float64(bytes)
	for value >= 1024 && i < len(byteUnits)-1 {
		value /= 1024
		i++
	}

	formatted := strconv.FormatFloat(value, 'f', decimals, 64)
	// parse back to drop trailing zeros ("1.50" -> "1.5")
	if parsed, err := strconv.ParseFloat(formatted, 64); err == nil {
		formatted = strconv.FormatFloat(parsed, 'f', -1, 64)
	}
	return formatted + " " + byteUnits[i]
}

// APIResponse is a generic API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
