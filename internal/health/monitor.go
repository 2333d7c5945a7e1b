// internal/health/monitor.go

package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/fieldrec/internal/snapshot"
)

// Probe reads one auxiliary input. False on any fault.
type Probe func() bool

// PublishFunc receives a status after each change.
type PublishFunc func(Status)

// Monitor re-evaluates a unit's status once a second and publishes
// only when it changes. Nothing is published before the first
// snapshot arrives.
type Monitor struct {
	unitID    string
	latest    *snapshot.Latest
	airFilter Probe
	camSeated Probe
	publish   PublishFunc
	interval  time.Duration
	log       *slog.Logger

	mu   sync.Mutex
	th   Thresholds
	last *Status
}

// NewMonitor validates the wiring. Probes may be nil; a missing input
// reads as not-OK, same as a faulted one.
func NewMonitor(unitID string, latest *snapshot.Latest, th Thresholds, airFilter, camSeated Probe, publish PublishFunc, log *slog.Logger) (*Monitor, error) {
	if unitID == "" {
		return nil, errors.New("health: unit id is required")
	}
	if latest == nil {
		return nil, errors.New("health: snapshot source is required")
	}
	if publish == nil {
		return nil, errors.New("health: publish func is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if airFilter == nil {
		airFilter = func() bool { return false }
	}
	if camSeated == nil {
		camSeated = func() bool { return false }
	}
	return &Monitor{
		unitID:    unitID,
		latest:    latest,
		airFilter: airFilter,
		camSeated: camSeated,
		publish:   publish,
		interval:  time.Second,
		th:        th,
		log:       log.With("unit", unitID, "worker", "health"),
	}, nil
}

// SetThresholds swaps the bounds. Takes effect on the next tick.
func (m *Monitor) SetThresholds(th Thresholds) {
	m.mu.Lock()
	m.th = th
	m.mu.Unlock()
}

// Run ticks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick()
		}
	}
}

// tick is one evaluation. Exported behavior lives here so tests can
// drive the monitor without the ticker.
func (m *Monitor) tick() {
	snap, ok := m.latest.Load()
	if !ok {
		return
	}
	m.mu.Lock()
	th := m.th
	m.mu.Unlock()

	status := Evaluate(snap, th, m.airFilter(), m.camSeated())

	m.mu.Lock()
	changed := m.last == nil || *m.last != status
	if changed {
		m.last = &status
	}
	m.mu.Unlock()

	if changed {
		m.log.Info("health changed", "ok", status.OK,
			"cam_temp", status.CamTempOK,
			"air_press", status.AirPressOK,
			"air_temp", status.AirTempOK,
			"air_filter", status.AirFilterOK,
			"camera_seated", status.CameraSeatedOK,
		)
		m.publish(status)
	}
}
