// internal/fieldbus/poller.go
package fieldbus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tamzrod/fieldrec/internal/snapshot"
)

// Instrument is one connected serial endpoint.
// The handle is exclusively owned by the poller.
type Instrument interface {
	// ReadBlock returns the full configured register block.
	ReadBlock() ([]uint16, error)
	Close() error
}

// Dialer opens the endpoint. ONE attempt per call; the poller owns all
// reconnect policy.
type Dialer func() (Instrument, error)

// Poller keeps a full snapshot flowing regardless of faults.
// Transient faults freeze the last-known-good values below the threshold;
// sustained or structural faults publish all-Unavailable. The loop never
// terminates on its own.
type Poller struct {
	cfg     Config
	dial    Dialer
	publish PublishFunc
	log     *slog.Logger

	// loop state, owned by Run
	inst     Instrument
	state    ConnectionState
	cache    snapshot.Snapshot
	failures int
	backoff  time.Duration
}

// New creates a poller with immutable config.
func New(cfg Config, dial Dialer, publish PublishFunc, log *slog.Logger) (*Poller, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("fieldbus: unit id required")
	}
	if cfg.Count < 1 {
		return nil, errors.New("fieldbus: count must be >= 1")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("fieldbus: interval must be > 0")
	}
	if cfg.FailThreshold < 1 {
		return nil, errors.New("fieldbus: fail threshold must be >= 1")
	}
	if cfg.BackoffStart <= 0 || cfg.BackoffMax < cfg.BackoffStart {
		return nil, errors.New("fieldbus: backoff bounds invalid")
	}
	if dial == nil {
		return nil, errors.New("fieldbus: dialer required")
	}
	if publish == nil {
		return nil, errors.New("fieldbus: publish func required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		dial:    dial,
		publish: publish,
		log:     log.With("unit", cfg.UnitID, "worker", "fieldbus"),
	}, nil
}

func (p *Poller) init() {
	p.state = Disconnected
	p.cache = snapshot.New(p.cfg.Count)
	p.failures = 0
	p.backoff = p.cfg.BackoffStart
}

// connect makes one dial attempt.
// Failure publishes offline at most once per attempt, then backs off.
func (p *Poller) connect(ctx context.Context) {
	inst, err := p.dial()
	if err != nil {
		p.log.Warn("endpoint open failed", "err", err, "backoff", p.backoff)
		p.publishOffline()
		sleepCtx(ctx, p.backoff)
		p.backoff = nextBackoff(p.backoff, p.cfg.BackoffMax)
		return
	}

	p.inst = inst
	p.state = Connected
	p.failures = 0
	p.backoff = p.cfg.BackoffStart
	p.log.Info("endpoint connected")
}

// pollOnce performs one read cycle while connected.
func (p *Poller) pollOnce(ctx context.Context) {
	regs, err := p.inst.ReadBlock()

	switch {
	case err == nil:
		if p.failures > 0 {
			p.log.Info("read recovered", "failures", p.failures)
		}
		p.failures = 0
		p.cache.Taken = time.Now()
		p.cache.Fill(regs)
		p.publish(p.cache.Clone())
		sleepCtx(ctx, p.cfg.Interval)

	case errors.Is(err, ErrHardIO):
		// Transport is gone: offline on this same cycle, then reconnect.
		p.log.Warn("transport lost", "err", err)
		p.release()
		p.state = Disconnected
		p.publishOffline()
		sleepCtx(ctx, p.backoff)
		p.backoff = nextBackoff(p.backoff, p.cfg.BackoffMax)

	default:
		p.failures++
		if p.failures >= p.cfg.FailThreshold {
			if p.failures == p.cfg.FailThreshold {
				p.log.Warn("soft-failure threshold crossed", "failures", p.failures, "err", err)
			}
			p.publishOffline()
		} else {
			p.log.Debug("transient read failure", "failures", p.failures, "err", err)
			// Freeze: republish the unchanged last-known-good values.
			p.publish(p.cache.Clone())
		}
		sleepCtx(ctx, p.cfg.Interval)
	}
}

// publishOffline publishes a fully Unavailable snapshot and drops the
// last-known-good cache, so recovery resumes from live values only.
func (p *Poller) publishOffline() {
	p.cache.Reset()
	p.cache.Taken = time.Now()
	p.publish(p.cache.Clone())
}

func (p *Poller) release() {
	if p.inst == nil {
		return
	}
	if err := p.inst.Close(); err != nil {
		p.log.Warn("endpoint close failed", "err", err)
	}
	p.inst = nil
}

// nextBackoff doubles the delay, capped at max.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}
