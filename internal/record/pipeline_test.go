// internal/record/pipeline_test.go

package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tamzrod/fieldrec/internal/snapshot"
	"github.com/tamzrod/fieldrec/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- fakes ----

type fakeSink struct {
	path     string
	frames   [][]byte
	closed   bool
	writeErr error
}

func (s *fakeSink) WriteFrame(rgb []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.frames = append(s.frames, append([]byte(nil), rgb...))
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type openCall struct {
	path          string
	width, height int
}

type fakeOpener struct {
	calls     []openCall
	sinks     []*fakeSink
	failFirst int
	create    bool
	writeErr  error
}

func (o *fakeOpener) open(path string, w, h int, fps float64) (FrameSink, error) {
	o.calls = append(o.calls, openCall{path: path, width: w, height: h})
	if len(o.calls) <= o.failFirst {
		return nil, fmt.Errorf("%w: refused", ErrWriterOpen)
	}
	if o.create {
		if err := os.WriteFile(path, []byte("avi"), 0o644); err != nil {
			return nil, err
		}
	}
	s := &fakeSink{path: path, writeErr: o.writeErr}
	o.sinks = append(o.sinks, s)
	return s, nil
}

type closedLog struct {
	segs []Segment
}

func (c *closedLog) fn(s Segment) {
	c.segs = append(c.segs, s)
}

func rgbFrame(w, h int) stream.Frame {
	return stream.Frame{Width: w, Height: h, Data: make([]byte, w*h*3)}
}

func newTestRecorder(t *testing.T, root string, open SinkOpener, onClosed ClosedFunc) *Recorder {
	t.Helper()
	r, err := New(
		Config{
			UnitID:    "kiln-1",
			Camera:    "Kiln A",
			Root:      root,
			Container: "avi",
			FPS:       20,
			Rotation:  time.Hour,
		},
		open,
		&snapshot.Latest{},
		[]OverlayPoint{{Index: 1, Enabled: true, Label: "Cam Temp"}},
		onClosed,
		testLogger(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	open := (&fakeOpener{}).open
	latest := &snapshot.Latest{}
	good := Config{UnitID: "u", Camera: "c", Root: "r", Container: "avi", FPS: 20, Rotation: time.Hour}

	if _, err := New(good, open, latest, nil, nil, testLogger()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for name, mutate := range map[string]func(*Config){
		"unit":      func(c *Config) { c.UnitID = "" },
		"camera":    func(c *Config) { c.Camera = "" },
		"root":      func(c *Config) { c.Root = "" },
		"container": func(c *Config) { c.Container = "" },
		"fps":       func(c *Config) { c.FPS = 0 },
		"rotation":  func(c *Config) { c.Rotation = 0 },
	} {
		bad := good
		mutate(&bad)
		if _, err := New(bad, open, latest, nil, nil, testLogger()); err == nil {
			t.Fatalf("missing %s accepted", name)
		}
	}
	if _, err := New(good, nil, latest, nil, nil, testLogger()); err == nil {
		t.Fatalf("nil opener accepted")
	}
	if _, err := New(good, open, nil, nil, nil, testLogger()); err == nil {
		t.Fatalf("nil snapshot source accepted")
	}
}

func TestRecorder_FirstFrameOpensAtArrival(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)
	clock := at(14, 7, 13)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))

	if len(opener.calls) != 1 {
		t.Fatalf("opener calls = %d, want 1", len(opener.calls))
	}
	call := opener.calls[0]
	if filepath.Base(call.path) != "14_07__15_07.avi" {
		t.Fatalf("opened %q, want 14_07__15_07.avi", filepath.Base(call.path))
	}
	if call.width != 160 || call.height != 120 {
		t.Fatalf("opened at %dx%d, want 160x120", call.width, call.height)
	}
	if len(opener.sinks[0].frames) != 1 {
		t.Fatalf("frames written = %d, want 1", len(opener.sinks[0].frames))
	}
}

func TestRecorder_RotatesAtPlannedBoundary(t *testing.T) {
	opener := &fakeOpener{}
	closed := &closedLog{}
	r := newTestRecorder(t, t.TempDir(), opener.open, closed.fn)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	clock = at(14, 59, 59)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 1 {
		t.Fatalf("rotated before the planned end")
	}

	clock = at(15, 0, 0)
	r.WriteFrame(rgbFrame(160, 120))

	if len(opener.calls) != 2 {
		t.Fatalf("opener calls = %d, want 2", len(opener.calls))
	}
	if !opener.sinks[0].closed {
		t.Fatalf("first sink left open after rotation")
	}
	if filepath.Base(opener.calls[1].path) != "15_00__16_00.avi" {
		t.Fatalf("second segment %q, want 15_00__16_00.avi", filepath.Base(opener.calls[1].path))
	}
	if len(closed.segs) != 1 {
		t.Fatalf("closed segments = %d, want 1", len(closed.segs))
	}
	seg := closed.segs[0]
	if !seg.PlannedEnd.Equal(at(15, 0, 0)) || !seg.ActualEnd.Equal(at(15, 0, 0)) {
		t.Fatalf("rotation close = %v/%v, want planned end on both", seg.PlannedEnd, seg.ActualEnd)
	}
	if filepath.Base(seg.Path) != "14_00__15_00.avi" {
		t.Fatalf("rotated file kept %q, want the planned-end name", filepath.Base(seg.Path))
	}
	if got := len(opener.sinks[1].frames); got != 1 {
		t.Fatalf("frames in second segment = %d, want 1", got)
	}
}

func TestRecorder_StallBackfillsContiguously(t *testing.T) {
	opener := &fakeOpener{}
	closed := &closedLog{}
	r := newTestRecorder(t, t.TempDir(), opener.open, closed.fn)
	clock := at(12, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	clock = at(15, 30, 0)
	r.WriteFrame(rgbFrame(160, 120))

	if len(closed.segs) != 3 {
		t.Fatalf("closed segments = %d, want 3 catch-up closes", len(closed.segs))
	}
	for i, seg := range closed.segs {
		if i == 0 {
			continue
		}
		if !seg.PlannedStart.Equal(closed.segs[i-1].PlannedEnd) {
			t.Fatalf("segment %d starts %v, prior ended %v: not contiguous",
				i, seg.PlannedStart, closed.segs[i-1].PlannedEnd)
		}
	}
	if r.seg == nil || !r.seg.PlannedStart.Equal(at(15, 0, 0)) {
		t.Fatalf("open segment = %+v, want start 15:00", r.seg)
	}
	if len(opener.calls) != 4 {
		t.Fatalf("opener calls = %d, want 4", len(opener.calls))
	}
	last := opener.sinks[len(opener.sinks)-1]
	if len(last.frames) != 1 {
		t.Fatalf("frames in resumed segment = %d, want 1", len(last.frames))
	}
}

func TestRecorder_MidnightCapAndFreshStart(t *testing.T) {
	opener := &fakeOpener{}
	closed := &closedLog{}
	r := newTestRecorder(t, t.TempDir(), opener.open, closed.fn)
	clock := at(23, 30, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	if filepath.Base(opener.calls[0].path) != "23_30__23_59.avi" {
		t.Fatalf("capped segment %q, want 23_30__23_59.avi", filepath.Base(opener.calls[0].path))
	}

	clock = time.Date(2026, 3, 10, 0, 0, 30, 0, time.UTC)
	r.WriteFrame(rgbFrame(160, 120))

	if len(closed.segs) != 1 {
		t.Fatalf("closed segments = %d, want 1", len(closed.segs))
	}
	if !closed.segs[0].PlannedEnd.Equal(at(23, 59, 0)) {
		t.Fatalf("capped close at %v, want 23:59", closed.segs[0].PlannedEnd)
	}
	if len(opener.calls) != 2 {
		t.Fatalf("opener calls = %d, want 2", len(opener.calls))
	}
	next := opener.calls[1].path
	if filepath.Base(next) != "00_00__01_00.avi" {
		t.Fatalf("next-day segment %q, want 00_00__01_00.avi", filepath.Base(next))
	}
	if dir := filepath.Base(filepath.Dir(next)); dir != "10-03-26" {
		t.Fatalf("next-day folder %q, want 10-03-26", dir)
	}
	if !r.seg.PlannedStart.Equal(clock) {
		t.Fatalf("next-day start = %v, want the frame's own arrival time", r.seg.PlannedStart)
	}
}

func TestRecorder_FinalMinuteHoldsUntilNextDay(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)
	clock := at(23, 59, 10)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	clock = at(23, 59, 40)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 0 {
		t.Fatalf("opened a segment inside the day's final minute")
	}

	clock = time.Date(2026, 3, 10, 0, 0, 5, 0, time.UTC)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 1 {
		t.Fatalf("opener calls = %d, want 1 on the new day", len(opener.calls))
	}
	if len(opener.sinks[0].frames) != 1 {
		t.Fatalf("frames written = %d, want only the new day's", len(opener.sinks[0].frames))
	}
}

func TestRecorder_StopRenamesToActualEnd(t *testing.T) {
	opener := &fakeOpener{create: true}
	closed := &closedLog{}
	root := t.TempDir()
	r := newTestRecorder(t, root, opener.open, closed.fn)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	planned := opener.calls[0].path

	clock = at(14, 23, 45)
	r.Stop()

	if _, err := os.Stat(planned); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("planned-name file still present: %v", err)
	}
	final := filepath.Join(root, "Kiln A", "09-03-26", "14_00__14_23.avi")
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if len(closed.segs) != 1 {
		t.Fatalf("closed segments = %d, want 1", len(closed.segs))
	}
	seg := closed.segs[0]
	if seg.Path != final {
		t.Fatalf("closed path %q, want %q", seg.Path, final)
	}
	if !seg.ActualEnd.Equal(at(14, 23, 45)) {
		t.Fatalf("actual end = %v, want the stop time", seg.ActualEnd)
	}
	if !opener.sinks[0].closed {
		t.Fatalf("sink left open on stop")
	}

	r.Stop() // idempotent
	if len(closed.segs) != 1 {
		t.Fatalf("second stop closed again")
	}
}

func TestRecorder_StopWithMissingFileContinues(t *testing.T) {
	opener := &fakeOpener{} // never creates the file
	closed := &closedLog{}
	r := newTestRecorder(t, t.TempDir(), opener.open, closed.fn)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	clock = at(14, 23, 0)
	r.Stop()

	if len(closed.segs) != 1 {
		t.Fatalf("closed segments = %d, want 1 despite the missing file", len(closed.segs))
	}
	if filepath.Base(closed.segs[0].Path) != "14_00__15_00.avi" {
		t.Fatalf("closed path %q, want the planned name kept", closed.segs[0].Path)
	}
}

func TestRecorder_WriterOpenFailureSkipsWindow(t *testing.T) {
	opener := &fakeOpener{failFirst: 1}
	closed := &closedLog{}
	r := newTestRecorder(t, t.TempDir(), opener.open, closed.fn)
	clock := at(14, 10, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	clock = at(14, 20, 0)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 1 {
		t.Fatalf("opener retried inside the failed window")
	}

	clock = at(15, 10, 0)
	r.WriteFrame(rgbFrame(160, 120))

	if len(opener.calls) != 2 {
		t.Fatalf("opener calls = %d, want a fresh try at the boundary", len(opener.calls))
	}
	if len(closed.segs) != 1 || !closed.segs[0].PlannedStart.Equal(at(14, 10, 0)) {
		t.Fatalf("failed window not closed at the boundary: %+v", closed.segs)
	}
	if len(opener.sinks) != 1 || len(opener.sinks[0].frames) != 1 {
		t.Fatalf("post-recovery frame not written")
	}
}

func TestRecorder_WriteErrorDropsSinkUntilRotation(t *testing.T) {
	opener := &fakeOpener{writeErr: errors.New("disk full")}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(160, 120))
	if !opener.sinks[0].closed {
		t.Fatalf("failing sink not dropped")
	}
	clock = at(14, 30, 0)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 1 {
		t.Fatalf("opener retried inside the window after a write failure")
	}

	opener.writeErr = nil
	clock = at(15, 0, 0)
	r.WriteFrame(rgbFrame(160, 120))
	if len(opener.calls) != 2 {
		t.Fatalf("no fresh sink at the next boundary")
	}
	if len(opener.sinks[1].frames) != 1 {
		t.Fatalf("recovered frame not written")
	}
}

func TestRecorder_ComposeDoesNotMutateSourceFrame(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	fr := rgbFrame(200, 40)
	orig := append([]byte(nil), fr.Data...)
	r.WriteFrame(fr)

	if !bytes.Equal(fr.Data, orig) {
		t.Fatalf("overlay mutated the ingestor's buffer")
	}
	out := opener.sinks[0].frames[0]
	painted := false
	for _, b := range out {
		if b != 0 {
			painted = true
			break
		}
	}
	if !painted {
		t.Fatalf("written frame carries no overlay")
	}
}

func TestRecorder_LearnsSizeAndRescales(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)
	clock := at(14, 0, 0)
	r.now = func() time.Time { return clock }

	r.WriteFrame(rgbFrame(8, 4))
	r.WriteFrame(rgbFrame(4, 2))

	sink := opener.sinks[0]
	if len(sink.frames) != 2 {
		t.Fatalf("frames written = %d, want 2", len(sink.frames))
	}
	for i, fr := range sink.frames {
		if len(fr) != 8*4*3 {
			t.Fatalf("frame %d is %d bytes, want rescale to the learned 8x4", i, len(fr))
		}
	}
}

func TestRecorder_SkipsMalformedFrames(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestRecorder(t, t.TempDir(), opener.open, nil)

	r.WriteFrame(stream.Frame{})
	r.WriteFrame(stream.Frame{Width: 4, Height: 2, Data: make([]byte, 5)})

	if len(opener.calls) != 0 {
		t.Fatalf("malformed frames opened a segment")
	}
	if r.width != 0 {
		t.Fatalf("malformed frame set the learned size")
	}
}
