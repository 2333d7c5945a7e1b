// internal/stream/ingestor.go

package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Ingestor runs the open/read loops for one camera unit.
//
// Open failures arm a wall-clock timer on the first failure since the
// last success; when the elapsed window exceeds the budget the worker
// signals Failed exactly once and terminates. A successful open clears
// the timer. A failed read releases the handle and goes straight back
// to the open loop with no delay; the timer re-arms only if the
// reopen itself fails.
type Ingestor struct {
	cfg     Config
	open    Opener
	onFrame FrameFunc
	notify  NotifyFunc
	log     *slog.Logger

	// loop state, touched only by the Run goroutine
	src          Source
	state        State
	failingSince time.Time

	now func() time.Time
}

// New validates the wiring and returns an idle ingestor. It MUST NOT
// open anything; the first attempt happens inside Run.
func New(cfg Config, open Opener, onFrame FrameFunc, notify NotifyFunc, log *slog.Logger) (*Ingestor, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("stream: unit id is required")
	}
	if cfg.RetryDelay <= 0 {
		return nil, errors.New("stream: retry delay must be positive")
	}
	if cfg.FailBudget <= 0 {
		return nil, errors.New("stream: fail budget must be positive")
	}
	if open == nil {
		return nil, errors.New("stream: opener is required")
	}
	if onFrame == nil {
		return nil, errors.New("stream: frame consumer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		cfg:     cfg,
		open:    open,
		onFrame: onFrame,
		notify:  notify,
		log:     log.With("unit", cfg.UnitID, "worker", "stream"),
		state:   Opening,
		now:     time.Now,
	}, nil
}

// Run drives the worker until ctx is done or the budget runs out.
// Any open handle is released before Run returns.
func (g *Ingestor) Run(ctx context.Context) {
	g.log.Info("stream ingest started",
		"retry_delay", g.cfg.RetryDelay,
		"fail_budget", g.cfg.FailBudget,
	)
	defer g.release()
	for ctx.Err() == nil && g.state != Failed {
		g.step(ctx)
	}
	g.log.Info("stream ingest stopped", "state", g.state.String())
}

// step performs one loop iteration: an open attempt when no handle is
// held, otherwise one read.
func (g *Ingestor) step(ctx context.Context) {
	if g.src == nil {
		g.openOnce(ctx)
		return
	}
	g.readOnce(ctx)
}

// openOnce makes one open attempt and applies the budget rules.
func (g *Ingestor) openOnce(ctx context.Context) {
	src, err := g.open(ctx)
	if err == nil {
		g.src = src
		g.failingSince = time.Time{}
		g.log.Info("stream open")
		g.setState(Streaming, nil)
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := g.now()
	if g.failingSince.IsZero() {
		g.failingSince = now
	}
	if elapsed := now.Sub(g.failingSince); elapsed > g.cfg.FailBudget {
		g.log.Error("stream failed permanently",
			"error", err,
			"down_for", elapsed,
		)
		g.setState(Failed, err)
		return
	}
	g.log.Warn("stream open failed, retrying",
		"error", err,
		"retry_in", g.cfg.RetryDelay,
	)
	g.setState(Reconnecting, err)
	sleepCtx(ctx, g.cfg.RetryDelay)
}

// readOnce pulls one frame. A failed read drops the handle so the next
// step reopens immediately.
func (g *Ingestor) readOnce(ctx context.Context) {
	fr, err := g.src.ReadFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		g.log.Warn("stream read failed, reopening", "error", err)
		g.release()
		g.setState(Reconnecting, err)
		return
	}
	g.onFrame(fr)
}

// setState records the transition and always notifies, so repeated
// failed opens each produce a reconnecting signal.
func (g *Ingestor) setState(s State, err error) {
	g.state = s
	if g.notify != nil {
		g.notify(s, err)
	}
}

func (g *Ingestor) release() {
	if g.src == nil {
		return
	}
	if err := g.src.Close(); err != nil {
		g.log.Warn("stream close failed", "error", err)
	}
	g.src = nil
}

// sleepCtx waits for d or for ctx, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
