// internal/unit/unit.go

// Package unit assembles and supervises one monitored unit: the
// field-bus poller, the stream ingestor feeding the recorder, and the
// health monitor. Workers fail and restart independently; the unit
// only ties their lifetimes together.
package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tamzrod/fieldrec/internal/catalog"
	"github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/display"
	"github.com/tamzrod/fieldrec/internal/fieldbus"
	"github.com/tamzrod/fieldrec/internal/fieldbus/modbus"
	"github.com/tamzrod/fieldrec/internal/health"
	"github.com/tamzrod/fieldrec/internal/pins"
	"github.com/tamzrod/fieldrec/internal/record"
	"github.com/tamzrod/fieldrec/internal/record/avi"
	"github.com/tamzrod/fieldrec/internal/snapshot"
	"github.com/tamzrod/fieldrec/internal/stream"
	"github.com/tamzrod/fieldrec/internal/stream/rtsp"
)

// Deps are the process-wide collaborators shared by every unit.
type Deps struct {
	Recording config.RecordingConfig
	Bus       *display.Bus

	// Catalog may be nil; segments then go uncataloged.
	Catalog *catalog.Catalog

	// Pins may be nil; the logging mock driver is used then.
	Pins pins.Driver

	Log *slog.Logger
}

// Unit is one supervised worker set.
type Unit struct {
	id      string
	deps    Deps
	baseLog *slog.Logger
	log     *slog.Logger

	latest *snapshot.Latest

	mu  sync.Mutex
	cfg config.UnitConfig
	ctx context.Context
	wg  sync.WaitGroup

	cancel context.CancelFunc

	poller       *fieldbus.Poller
	pollerCancel context.CancelFunc
	pollerDone   chan struct{}

	recorder *record.Recorder

	streamCfg    stream.Config
	opener       stream.Opener
	streamCancel context.CancelFunc
	streamDone   chan struct{}

	monitor *health.Monitor
	pinCtrl *pins.Controller
}

// ------------------------------------------------------------
// ---- BUILD ----
// ------------------------------------------------------------

// Build wires every worker for one unit without starting anything and
// without touching hardware. A unit with no stream URL runs the
// field-bus side only.
func Build(u config.UnitConfig, deps Deps) (*Unit, error) {
	if u.ID == "" {
		return nil, errors.New("unit: id is required")
	}
	if deps.Bus == nil {
		return nil, errors.New("unit: event bus is required")
	}
	baseLog := deps.Log
	if baseLog == nil {
		baseLog = slog.Default()
	}
	if deps.Pins == nil {
		deps.Pins = pins.NewLogDriver(baseLog)
	}

	n := &Unit{
		id:      u.ID,
		deps:    deps,
		baseLog: baseLog,
		log:     baseLog.With("unit", u.ID, "worker", "unit"),
		latest:  &snapshot.Latest{},
		cfg:     u,
	}

	// ---- pins ----
	pinCtrl, err := pins.New(u.ID, assignment(u.Pins), deps.Pins, baseLog)
	if err != nil {
		return nil, err
	}
	n.pinCtrl = pinCtrl

	// ---- field bus ----
	poller, err := modbus.Build(u, n.publishSnapshot, baseLog)
	if err != nil {
		return nil, err
	}
	n.poller = poller

	// ---- health ----
	// Probes resolve the controller per call so a pin reassignment
	// takes effect without restarting the monitor.
	airFilter := func() bool { return n.pinController().AirFilterOK() }
	camSeated := func() bool { return n.pinController().CameraSeated() }
	monitor, err := health.NewMonitor(u.ID, n.latest, thresholds(u.Thresholds),
		airFilter, camSeated, n.publishHealth, baseLog)
	if err != nil {
		return nil, err
	}
	n.monitor = monitor

	// ---- recording + stream ----
	if u.Stream.URL != "" {
		if err := n.buildRecorderLocked(u); err != nil {
			return nil, err
		}
		n.opener = rtsp.Build(rtspConfig(u), baseLog)
		n.streamCfg = streamConfig(u)
	}

	return n, nil
}

func (n *Unit) buildRecorderLocked(u config.UnitConfig) error {
	rec, err := record.New(
		recordConfig(u, n.deps.Recording),
		avi.Opener(n.baseLog.With("unit", u.ID)),
		n.latest,
		overlayPoints(u.Overlay),
		n.segmentClosed,
		n.baseLog,
	)
	if err != nil {
		return err
	}
	n.recorder = rec
	return nil
}

// ID names the unit.
func (n *Unit) ID() string { return n.id }

// ------------------------------------------------------------
// ---- EVENT WIRING ----
// ------------------------------------------------------------

func (n *Unit) publishSnapshot(snap snapshot.Snapshot) {
	n.latest.Store(snap)
	n.deps.Bus.Publish(display.NewSnapshotUpdated(n.id, snap))
}

func (n *Unit) publishHealth(st health.Status) {
	n.deps.Bus.Publish(display.NewHealthChanged(n.id, st))
}

// consumeFrame runs on the ingest goroutine: the recorder writes the
// frame before the display gets its copy offered.
func (n *Unit) consumeFrame(fr stream.Frame) {
	n.recorder.WriteFrame(fr)
	n.deps.Bus.Publish(display.NewFrameReady(n.id, fr))
}

func (n *Unit) streamNotify(st stream.State, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	n.deps.Bus.Publish(display.NewStreamStateChanged(n.id, st, reason))
}

func (n *Unit) segmentClosed(seg record.Segment) {
	if n.deps.Catalog != nil {
		if err := n.deps.Catalog.Add(seg); err != nil {
			n.log.Error("segment catalog add failed", "error", err, "path", seg.Path)
		}
	}
	n.deps.Bus.Publish(display.NewSegmentClosed(n.id, seg))
}

// ------------------------------------------------------------
// ---- LIFECYCLE ----
// ------------------------------------------------------------

// Start launches the workers under a context derived from ctx.
func (n *Unit) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return errors.New("unit: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.ctx, n.cancel = runCtx, cancel

	n.startPollerLocked()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.monitor.Run(runCtx)
	}()

	if n.opener != nil {
		if err := n.startStreamLocked(); err != nil {
			cancel()
			n.wg.Wait()
			n.cancel = nil
			return err
		}
	}

	n.log.Info("unit started",
		"label", n.cfg.Label,
		"stream", n.cfg.Stream.URL != "",
		"port", n.cfg.FieldBus.Port,
	)
	return nil
}

// Stop cancels every worker, waits for them, then finalizes the open
// recording. Idempotent; the unit can be started again afterwards.
func (n *Unit) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	n.wg.Wait()
	if rec := n.currentRecorder(); rec != nil {
		rec.Stop()
	}
	n.log.Info("unit stopped")
}

// RestartStream relaunches the ingest worker. This is the external
// recovery signal after a permanent stream failure; it is also safe
// while the worker is still reconnecting.
func (n *Unit) RestartStream() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.opener == nil {
		return errors.New("unit: no stream configured")
	}
	if n.ctx == nil || n.ctx.Err() != nil {
		return errors.New("unit: not running")
	}
	n.stopStreamLocked()
	if err := n.startStreamLocked(); err != nil {
		return err
	}
	n.log.Info("stream worker restarted")
	return nil
}

// InsertCamera drives the camera actuator in.
func (n *Unit) InsertCamera() error { return n.pinController().InsertCamera() }

// RetractCamera drives the camera actuator out.
func (n *Unit) RetractCamera() error { return n.pinController().RetractCamera() }

func (n *Unit) pinController() *pins.Controller {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pinCtrl
}

func (n *Unit) currentRecorder() *record.Recorder {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recorder
}

// ------------------------------------------------------------
// ---- WORKER SLOTS ----
// ------------------------------------------------------------

func (n *Unit) startPollerLocked() {
	ctx, cancel := context.WithCancel(n.ctx)
	done := make(chan struct{})
	n.pollerCancel, n.pollerDone = cancel, done
	p := n.poller
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(done)
		p.Run(ctx)
	}()
}

func (n *Unit) stopPollerLocked() {
	if n.pollerCancel == nil {
		return
	}
	n.pollerCancel()
	<-n.pollerDone
	n.pollerCancel = nil
}

func (n *Unit) startStreamLocked() error {
	ing, err := stream.New(n.streamCfg, n.opener, n.consumeFrame, n.streamNotify, n.baseLog)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(n.ctx)
	done := make(chan struct{})
	n.streamCancel, n.streamDone = cancel, done
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(done)
		ing.Run(ctx)
	}()
	return nil
}

func (n *Unit) stopStreamLocked() {
	if n.streamCancel == nil {
		return
	}
	n.streamCancel()
	<-n.streamDone
	n.streamCancel = nil
}

// ------------------------------------------------------------
// ---- RECONFIGURE ----
// ------------------------------------------------------------

// Reconfigure applies a newer config record for this unit. Thresholds,
// overlay, rotation period and pin assignment swap live. A changed
// stream or serial endpoint restarts just that worker. A changed
// camera label keeps the old label until the daemon restarts, so open
// segment paths stay consistent.
func (n *Unit) Reconfigure(u config.UnitConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if u.ID != n.id {
		return fmt.Errorf("unit: config for %q applied to %q", u.ID, n.id)
	}

	// ---- live swaps ----
	n.monitor.SetThresholds(thresholds(u.Thresholds))
	if n.recorder != nil {
		n.recorder.SetOverlay(overlayPoints(u.Overlay))
		n.recorder.SetRotation(recordConfig(u, n.deps.Recording).Rotation)
	}
	if u.Pins != n.cfg.Pins {
		ctrl, err := pins.New(u.ID, assignment(u.Pins), n.deps.Pins, n.baseLog)
		if err != nil {
			return err
		}
		n.pinCtrl = ctrl
		n.log.Info("pin assignment updated")
	}
	if u.Label != n.cfg.Label {
		n.log.Warn("camera label change takes effect on restart",
			"current", n.cfg.Label, "new", u.Label)
		u.Label = n.cfg.Label
	}

	running := n.ctx != nil && n.ctx.Err() == nil

	// ---- serial endpoint ----
	if u.FieldBus != n.cfg.FieldBus {
		p, err := modbus.Build(u, n.publishSnapshot, n.baseLog)
		if err != nil {
			return err
		}
		if running {
			n.stopPollerLocked()
		}
		n.poller = p
		if running {
			n.startPollerLocked()
		}
		n.log.Info("field bus endpoint updated", "port", u.FieldBus.Port)
	}

	// ---- stream endpoint ----
	if u.Stream != n.cfg.Stream {
		if err := n.reconfigureStreamLocked(u, running); err != nil {
			return err
		}
	}

	n.cfg = u
	return nil
}

func (n *Unit) reconfigureStreamLocked(u config.UnitConfig, running bool) error {
	if u.Stream.URL == "" {
		if running {
			n.stopStreamLocked()
		}
		n.opener = nil
		n.log.Info("stream removed")
		return nil
	}
	if n.recorder == nil {
		if err := n.buildRecorderLocked(u); err != nil {
			return err
		}
	}
	n.opener = rtsp.Build(rtspConfig(u), n.baseLog)
	n.streamCfg = streamConfig(u)
	if running {
		n.stopStreamLocked()
		if err := n.startStreamLocked(); err != nil {
			return err
		}
	}
	n.log.Info("stream endpoint updated", "url", u.Stream.URL)
	return nil
}
