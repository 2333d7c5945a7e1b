// internal/display/events.go

// Package display fans unit events out to UI-side consumers. The bus
// never blocks a producer: slow consumers lose events, counted per
// subscriber, and the per-unit frame feed is rate-limited so a stalled
// renderer cannot pile frames up.
package display

import (
	"time"

	"github.com/tamzrod/fieldrec/internal/health"
	"github.com/tamzrod/fieldrec/internal/record"
	"github.com/tamzrod/fieldrec/internal/snapshot"
	"github.com/tamzrod/fieldrec/internal/stream"
)

// Event is one unit-scoped occurrence on the bus.
type Event interface {
	Timestamp() time.Time
	EventType() string
	Unit() string
}

// ------------------------------------------------------------
// ---- EVENTS ----
// ------------------------------------------------------------

// SnapshotUpdated carries each published instrument snapshot,
// sentinel-filled ones included.
type SnapshotUpdated struct {
	timestamp time.Time
	unit      string
	Snap      snapshot.Snapshot
}

func NewSnapshotUpdated(unit string, snap snapshot.Snapshot) SnapshotUpdated {
	return SnapshotUpdated{timestamp: time.Now(), unit: unit, Snap: snap}
}

func (e SnapshotUpdated) Timestamp() time.Time { return e.timestamp }
func (e SnapshotUpdated) EventType() string    { return "snapshot-updated" }
func (e SnapshotUpdated) Unit() string         { return e.unit }

// FrameReady carries a decoded frame for live view. Subject to the
// bus's per-unit rate limit.
type FrameReady struct {
	timestamp time.Time
	unit      string
	Frame     stream.Frame
}

func NewFrameReady(unit string, fr stream.Frame) FrameReady {
	return FrameReady{timestamp: time.Now(), unit: unit, Frame: fr}
}

func (e FrameReady) Timestamp() time.Time { return e.timestamp }
func (e FrameReady) EventType() string    { return "frame-ready" }
func (e FrameReady) Unit() string         { return e.unit }

// StreamStateChanged reports ingest transitions, reconnecting and
// permanently-failed included. Reason carries the triggering error
// text, empty on recovery.
type StreamStateChanged struct {
	timestamp time.Time
	unit      string
	State     stream.State
	Reason    string
}

func NewStreamStateChanged(unit string, state stream.State, reason string) StreamStateChanged {
	return StreamStateChanged{timestamp: time.Now(), unit: unit, State: state, Reason: reason}
}

func (e StreamStateChanged) Timestamp() time.Time { return e.timestamp }
func (e StreamStateChanged) EventType() string    { return "stream-state-changed" }
func (e StreamStateChanged) Unit() string         { return e.unit }

// SegmentClosed reports every finalized recording segment.
type SegmentClosed struct {
	timestamp time.Time
	unit      string
	Segment   record.Segment
}

func NewSegmentClosed(unit string, seg record.Segment) SegmentClosed {
	return SegmentClosed{timestamp: time.Now(), unit: unit, Segment: seg}
}

func (e SegmentClosed) Timestamp() time.Time { return e.timestamp }
func (e SegmentClosed) EventType() string    { return "segment-closed" }
func (e SegmentClosed) Unit() string         { return e.unit }

// HealthChanged reports status strip transitions.
type HealthChanged struct {
	timestamp time.Time
	unit      string
	Status    health.Status
}

func NewHealthChanged(unit string, status health.Status) HealthChanged {
	return HealthChanged{timestamp: time.Now(), unit: unit, Status: status}
}

func (e HealthChanged) Timestamp() time.Time { return e.timestamp }
func (e HealthChanged) EventType() string    { return "health-changed" }
func (e HealthChanged) Unit() string         { return e.unit }
