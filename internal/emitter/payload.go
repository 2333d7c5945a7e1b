// internal/emitter/payload.go

package emitter

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tamzrod/fieldrec/internal/display"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ------------------------------------------------------------
// ---- WIRE FORMAT ----
// ------------------------------------------------------------

// wireEvent is the published envelope. Exactly one of the body fields
// is set, matching the event type.
type wireEvent struct {
	Unit      string    `json:"unit"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	Snapshot *wireSnapshot `json:"snapshot,omitempty"`
	Stream   *wireStream   `json:"stream,omitempty"`
	Segment  *wireSegment  `json:"segment,omitempty"`
	Health   *wireHealth   `json:"health,omitempty"`
}

// wireSnapshot carries readings in display form: one string per slot,
// index 1 first, "--" for unavailable.
type wireSnapshot struct {
	Taken    time.Time `json:"taken"`
	Readings []string  `json:"readings"`
}

type wireStream struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type wireSegment struct {
	Camera       string    `json:"camera"`
	Path         string    `json:"path"`
	PlannedStart time.Time `json:"planned_start"`
	PlannedEnd   time.Time `json:"planned_end"`
	ActualEnd    time.Time `json:"actual_end"`
}

type wireHealth struct {
	OK             bool `json:"ok"`
	CamTempOK      bool `json:"cam_temp_ok"`
	AirPressOK     bool `json:"air_press_ok"`
	AirTempOK      bool `json:"air_temp_ok"`
	AirFilterOK    bool `json:"air_filter_ok"`
	CameraSeatedOK bool `json:"camera_seated_ok"`
}

// ------------------------------------------------------------
// ---- BUILDERS ----
// ------------------------------------------------------------

// buildTopic shapes <prefix>/<unit>/<event-type>.
func buildTopic(prefix string, ev display.Event) string {
	return fmt.Sprintf("%s/%s/%s", prefix, ev.Unit(), ev.EventType())
}

// buildPayload encodes ev into its wire envelope.
func buildPayload(ev display.Event) ([]byte, error) {
	w := wireEvent{
		Unit:      ev.Unit(),
		Event:     ev.EventType(),
		Timestamp: ev.Timestamp().UTC(),
	}
	switch e := ev.(type) {
	case display.SnapshotUpdated:
		readings := make([]string, e.Snap.Len())
		for i := range readings {
			readings[i] = e.Snap.At(i + 1).String()
		}
		w.Snapshot = &wireSnapshot{Taken: e.Snap.Taken.UTC(), Readings: readings}
	case display.StreamStateChanged:
		w.Stream = &wireStream{State: e.State.String(), Reason: e.Reason}
	case display.SegmentClosed:
		w.Segment = &wireSegment{
			Camera:       e.Segment.Camera,
			Path:         e.Segment.Path,
			PlannedStart: e.Segment.PlannedStart.UTC(),
			PlannedEnd:   e.Segment.PlannedEnd.UTC(),
			ActualEnd:    e.Segment.ActualEnd.UTC(),
		}
	case display.HealthChanged:
		w.Health = &wireHealth{
			OK:             e.Status.OK,
			CamTempOK:      e.Status.CamTempOK,
			AirPressOK:     e.Status.AirPressOK,
			AirTempOK:      e.Status.AirTempOK,
			AirFilterOK:    e.Status.AirFilterOK,
			CameraSeatedOK: e.Status.CameraSeatedOK,
		}
	}
	return json.Marshal(w)
}
