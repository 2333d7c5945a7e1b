// internal/record/pipeline.go

package record

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tamzrod/fieldrec/internal/snapshot"
	"github.com/tamzrod/fieldrec/internal/stream"
)

// Recorder writes one camera's rotating segments.
//
// Rotation is clock-aligned: each segment starts exactly at the prior
// planned end, so boundaries never drift with frame arrival jitter.
// The two exceptions are session start (first frame opens at its own
// arrival time) and the day boundary (the capped segment closes at
// 23:59 and the next one restarts fresh at the next frame's arrival
// on the new day).
//
// WriteFrame never blocks on the poller: overlay values come from the
// latest published snapshot, whatever its age.
type Recorder struct {
	cfg      Config
	openSink SinkOpener
	latest   *snapshot.Latest
	onClosed ClosedFunc
	log      *slog.Logger

	mu     sync.Mutex
	points []OverlayPoint
	seg    *Segment
	sink   FrameSink
	width  int
	height int

	now func() time.Time
}

// New validates the wiring and returns an idle recorder. Nothing is
// opened until the first frame arrives.
func New(cfg Config, openSink SinkOpener, latest *snapshot.Latest, points []OverlayPoint, onClosed ClosedFunc, log *slog.Logger) (*Recorder, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("record: unit id is required")
	}
	if cfg.Camera == "" {
		return nil, errors.New("record: camera label is required")
	}
	if cfg.Root == "" {
		return nil, errors.New("record: root directory is required")
	}
	if cfg.Container == "" {
		return nil, errors.New("record: container extension is required")
	}
	if cfg.FPS <= 0 {
		return nil, errors.New("record: fps must be positive")
	}
	if cfg.Rotation <= 0 {
		return nil, errors.New("record: rotation period must be positive")
	}
	if openSink == nil {
		return nil, errors.New("record: sink opener is required")
	}
	if latest == nil {
		return nil, errors.New("record: snapshot source is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		cfg:      cfg,
		openSink: openSink,
		latest:   latest,
		onClosed: onClosed,
		log:      log.With("unit", cfg.UnitID, "worker", "record"),
		points:   append([]OverlayPoint(nil), points...),
		now:      time.Now,
	}, nil
}

// SetOverlay swaps the annotated points. Takes effect on the next
// frame.
func (r *Recorder) SetOverlay(points []OverlayPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append([]OverlayPoint(nil), points...)
}

// SetRotation swaps the segment period. The open segment keeps its
// planned end; the new period applies from the next segment on.
func (r *Recorder) SetRotation(period time.Duration) {
	if period <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Rotation = period
}

// WriteFrame composes and writes one frame, rotating segments as the
// clock demands. Runs on the ingestor's goroutine; a slow sink
// backpressures frame delivery by design of the caller, not here.
func (r *Recorder) WriteFrame(fr stream.Frame) {
	if len(fr.Data) == 0 || fr.Width <= 0 || fr.Height <= 0 {
		r.log.Warn("skipped empty frame")
		return
	}
	if len(fr.Data) != fr.Width*fr.Height*3 {
		r.log.Warn("skipped malformed frame",
			"bytes", len(fr.Data),
			"width", fr.Width,
			"height", fr.Height,
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.width == 0 {
		r.width, r.height = fr.Width, fr.Height
		r.log.Info("learned frame size", "width", r.width, "height", r.height)
	}

	now := r.now()
	if r.seg == nil {
		r.openSegment(now)
	} else {
		r.rotate(now)
	}
	if r.seg == nil || r.sink == nil {
		// Day-end hold, or the writer failed for this window.
		return
	}

	canvas := r.compose(fr)
	if err := r.sink.WriteFrame(canvas.pix); err != nil {
		r.log.Error("frame write failed, skipping until next rotation",
			"error", err,
			"path", r.seg.Path,
		)
		r.closeSink()
	}
}

// Stop closes the open segment and renames its file so the end label
// reflects the actual stop time. Idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seg == nil {
		return
	}
	r.closeSink()
	seg := *r.seg
	r.seg = nil

	seg.ActualEnd = r.now()
	final := segmentPath(r.cfg.Root, r.cfg.Camera, seg.PlannedStart, seg.ActualEnd, r.cfg.Container)
	if _, err := os.Stat(seg.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("expected recording file missing on stop", "path", seg.Path)
		} else {
			r.log.Warn("recording file not checked on stop", "path", seg.Path, "error", err)
		}
	} else if final != seg.Path {
		if err := os.Rename(seg.Path, final); err != nil {
			r.log.Error("recording rename failed", "error", err, "from", seg.Path, "to", final)
		} else {
			seg.Path = final
		}
	}

	r.log.Info("recording stopped", "path", seg.Path, "actual_end", seg.ActualEnd)
	if r.onClosed != nil {
		r.onClosed(seg)
	}
}

// ------------------------------------------------------------
// ---- ROTATION ----
// ------------------------------------------------------------

// rotate closes every segment the clock has already passed. A stall
// produces the full contiguous run of catch-up segments, not a gap.
// After a day boundary the next segment restarts fresh at now.
func (r *Recorder) rotate(now time.Time) {
	for r.seg != nil && !now.Before(r.seg.PlannedEnd) {
		prevEnd := r.seg.PlannedEnd
		r.closeSegment(prevEnd)
		start := prevEnd
		if !sameDay(prevEnd, now) {
			start = now
		}
		r.openSegment(start)
	}
}

// openSegment opens the segment beginning at start. On the session's
// first frame start is the frame's own arrival time; on rotation it
// is the prior planned end.
func (r *Recorder) openSegment(start time.Time) {
	end := planEnd(start, r.cfg.Rotation)
	if !end.After(start) {
		// start sits inside the day's final minute: the planned end
		// cannot clear the 23:59 cap. Hold until a frame arrives on
		// the new day.
		r.log.Debug("holding recording across the day boundary", "at", start)
		return
	}

	seg := &Segment{
		Unit:         r.cfg.UnitID,
		Camera:       r.cfg.Camera,
		PlannedStart: start,
		PlannedEnd:   end,
		Path:         segmentPath(r.cfg.Root, r.cfg.Camera, start, end, r.cfg.Container),
	}
	r.seg = seg

	if err := os.MkdirAll(filepath.Dir(seg.Path), 0o755); err != nil {
		r.log.Error("recording dir create failed, skipping writes this window",
			"error", err,
			"path", seg.Path,
		)
		return
	}
	sink, err := r.openSink(seg.Path, r.width, r.height, r.cfg.FPS)
	if err != nil {
		r.log.Error("writer open failed, skipping writes until next rotation",
			"error", err,
			"path", seg.Path,
		)
		return
	}
	r.sink = sink
	r.log.Info("recording started", "path", seg.Path, "planned_end", end)
}

// closeSegment finalizes the open segment at a rotation boundary. The
// file keeps its planned-end name.
func (r *Recorder) closeSegment(actual time.Time) {
	r.closeSink()
	seg := *r.seg
	r.seg = nil
	seg.ActualEnd = actual
	r.log.Info("recording closed", "path", seg.Path)
	if r.onClosed != nil {
		r.onClosed(seg)
	}
}

func (r *Recorder) closeSink() {
	if r.sink == nil {
		return
	}
	if err := r.sink.Close(); err != nil {
		r.log.Warn("sink close failed", "error", err)
	}
	r.sink = nil
}

// ------------------------------------------------------------
// ---- COMPOSITION ----
// ------------------------------------------------------------

// compose produces the frame that goes to disk: a copy of the input,
// rescaled to the learned size when needed, with the overlay drawn on
// top. The ingestor's buffer is never touched.
func (r *Recorder) compose(fr stream.Frame) *rgbCanvas {
	src := canvasFrom(fr.Data, fr.Width, fr.Height)
	var canvas *rgbCanvas
	if fr.Width != r.width || fr.Height != r.height {
		canvas = rescale(src, r.width, r.height)
	} else {
		canvas = src.clone()
	}
	snap, _ := r.latest.Load()
	drawOverlay(canvas, overlayLines(r.cfg.Camera, r.points, snap))
	return canvas
}
