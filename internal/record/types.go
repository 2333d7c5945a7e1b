// internal/record/types.go

// Package record writes rotating, clock-aligned video segments for one
// camera unit, stamping each frame with the camera label and the
// freshest instrument readings.
package record

import (
	"time"
)

// ------------------------------------------------------------
// ---- SEGMENTS ----
// ------------------------------------------------------------

// Segment is one bounded recording window. Path points at the planned
// file name until an early stop renames it.
type Segment struct {
	Unit         string
	Camera       string
	PlannedStart time.Time
	PlannedEnd   time.Time

	// ActualEnd is zero while the segment is open. On a rotation
	// close it equals PlannedEnd; on an explicit stop it is the stop
	// time.
	ActualEnd time.Time

	Path string
}

// ClosedFunc observes every closed segment, after the file is final.
// Runs on the write path; keep it short.
type ClosedFunc func(Segment)

// ------------------------------------------------------------
// ---- OVERLAY ----
// ------------------------------------------------------------

// OverlayPoint selects one instrument index for on-frame annotation.
type OverlayPoint struct {
	Index   int
	Enabled bool
	Label   string
}

// ------------------------------------------------------------
// ---- SINKS ----
// ------------------------------------------------------------

// FrameSink consumes composed RGB frames for one segment file. One
// sink, one file.
type FrameSink interface {
	// WriteFrame takes one packed RGB frame at the size the sink was
	// opened with.
	WriteFrame(rgb []byte) error

	// Close finalizes the file. Safe to call more than once.
	Close() error
}

// SinkOpener opens the container file for one segment. A failure MUST
// wrap ErrWriterOpen.
type SinkOpener func(path string, width, height int, fps float64) (FrameSink, error)

// ------------------------------------------------------------
// ---- CONFIG ----
// ------------------------------------------------------------

// Config carries the per-unit recording knobs.
type Config struct {
	// UnitID tags log records and segments.
	UnitID string

	// Camera is the label drawn on frames and used as the path
	// component under Root. MUST NOT contain path separators.
	Camera string

	// Root is the directory all recordings live under.
	Root string

	// Container is the bare file extension, "avi" by default.
	Container string

	// FPS is the nominal playback rate handed to the sink.
	FPS float64

	// Rotation is the planned length of each segment.
	Rotation time.Duration
}
