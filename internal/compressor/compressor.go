package compressor

import (
	"context"
	"time"

	"img-optimize/internal/metadata"
)

// Skip and failure reasons reported in Outcome.Reason.
const (
	ReasonUnsupportedFormat = "unsupported-format"
	ReasonWouldIncreaseSize = "would-increase-size"
)

// ImageFile is a discovered candidate. Format is the extension-based guess;
// the decoder has the final word.
type ImageFile struct {
	Path   string
	Format metadata.Format
	Size   int64
}

// Params defines how a single file is re-encoded.
type Params struct {
	Quality int
	// MaxWidth and MaxHeight bound the output dimensions; 0 leaves an axis
	// unconstrained.
	MaxWidth  int
	MaxHeight int
	DryRun    bool
}

// Task is one unit of work: a source file and where its result goes.
type Task struct {
	File        ImageFile
	Destination string
	// RelPath is Destination relative to the output root.
	RelPath string
	Params  Params
}

// Status is the conclusion reached for one file.
type Status int

const (
	StatusOptimized Status = iota
	StatusSkipped
	StatusFailed
)

// String returns a short name for the status.
func (s Status) String() string {
	switch s {
	case StatusOptimized:
		return "optimized"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a file whose re-encoded form is strictly smaller than
// the original.
type Result struct {
	SourcePath    string
	OriginalSize  int64
	OptimizedSize int64
}

// Outcome describes how one Task concluded.
type Outcome struct {
	Task       Task
	Status     Status
	Reason     string
	Err        error
	Format     metadata.Format
	Width      int
	Height     int
	Result     *Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Transcoder re-encodes a single image.
type Transcoder interface {
	// Transcode decodes, optionally resizes and re-encodes task.File. It
	// never panics on bad input and reports problems through the Outcome.
	Transcode(ctx context.Context, task Task) Outcome
}

// Failed returns a failed Outcome for task.
func Failed(task Task, err error) Outcome {
	now := time.Now()
	return Outcome{
		Task:       task,
		Status:     StatusFailed,
		Reason:     err.Error(),
		Err:        err,
		StartedAt:  now,
		FinishedAt: now,
	}
}
