// internal/stream/types.go

// Package stream pulls decoded video frames from a camera source and
// keeps pulling across open failures and mid-stream drops. It gives up
// only after a wall-clock reconnection budget passes with zero
// successful opens.
package stream

import (
	"context"
	"time"
)

// ------------------------------------------------------------
// ---- STATES ----
// ------------------------------------------------------------

// State is the ingest worker lifecycle.
type State int

const (
	// Opening is the initial state before the first open attempt.
	Opening State = iota

	// Streaming means a handle is open and frames are flowing.
	Streaming

	// Reconnecting means the last open or read failed and the worker
	// is retrying.
	Reconnecting

	// Failed is terminal: the reconnection budget ran out with zero
	// successful opens. The worker does not leave this state.
	Failed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ------------------------------------------------------------
// ---- FRAMES ----
// ------------------------------------------------------------

// Frame is one decoded frame in packed RGB, 3 bytes per pixel.
// Data belongs to the receiver once delivered; the source MUST NOT
// reuse the backing array.
type Frame struct {
	Seq     uint64
	Taken   time.Time
	Width   int
	Height  int
	Data    []byte
	Unit    string
	TraceID string
}

// FrameFunc receives frames one at a time, in arrival order. It runs
// on the ingest goroutine, so a slow consumer slows the pull loop.
type FrameFunc func(Frame)

// NotifyFunc receives ingest state transitions. err is nil for
// Streaming and carries the triggering failure otherwise.
type NotifyFunc func(State, error)

// ------------------------------------------------------------
// ---- SOURCE ----
// ------------------------------------------------------------

// Source is one open stream handle.
type Source interface {
	// ReadFrame blocks until the next frame arrives, the handle
	// fails, or ctx is done. A non-nil error means the handle is
	// unusable and MUST be closed.
	ReadFrame(ctx context.Context) (Frame, error)

	// Close releases the handle. Safe to call more than once.
	Close() error
}

// Opener makes ONE attempt to open the configured source. The
// ingestor owns retry policy; an Opener MUST NOT retry internally.
type Opener func(ctx context.Context) (Source, error)

// ------------------------------------------------------------
// ---- CONFIG ----
// ------------------------------------------------------------

// Config carries the per-unit ingest knobs. All fields are required.
type Config struct {
	// UnitID tags log records and frames.
	UnitID string

	// RetryDelay is the fixed wait between failed open attempts.
	RetryDelay time.Duration

	// FailBudget is the wall-clock window of consecutive failed
	// opens after which the worker fails permanently. The window
	// starts at the first failed open since the last success.
	FailBudget time.Duration
}
