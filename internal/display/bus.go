// internal/display/bus.go

package display

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameGap is the minimum spacing between FrameReady events for
// one unit. Anything faster is discarded before fan-out.
const DefaultFrameGap = 100 * time.Millisecond

var (
	ErrBusClosed          = errors.New("display: bus closed")
	ErrNilChannel         = errors.New("display: nil subscriber channel")
	ErrSubscriberExists   = errors.New("display: subscriber id already registered")
	ErrSubscriberNotFound = errors.New("display: subscriber id not registered")
)

// SubscriberStats counts deliveries for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch      chan<- Event
	sent    uint64
	dropped uint64
}

// Bus distributes events to registered channels. Publish never blocks:
// a full subscriber channel drops the event for that subscriber only.
type Bus struct {
	log      *slog.Logger
	frameGap time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	frameMu   sync.Mutex
	lastFrame map[string]time.Time

	published   uint64
	rateLimited uint64
}

// NewBus returns a bus with the given FrameReady spacing. A zero or
// negative gap selects DefaultFrameGap.
func NewBus(frameGap time.Duration, log *slog.Logger) *Bus {
	if frameGap <= 0 {
		frameGap = DefaultFrameGap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:       log,
		frameGap:  frameGap,
		now:       time.Now,
		subs:      make(map[string]*subscriber),
		lastFrame: make(map[string]time.Time),
	}
}

// Subscribe registers ch under id. The caller owns ch and MUST keep
// draining it; the bus never closes subscriber channels.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return ErrNilChannel
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return ErrSubscriberExists
	}
	b.subs[id] = &subscriber{ch: ch}
	b.log.Debug("display subscriber added", "id", id)
	return nil
}

// Unsubscribe removes id. Events already queued on its channel remain
// for the caller to drain.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	b.log.Debug("display subscriber removed", "id", id)
	return nil
}

// Publish fans ev out to every subscriber without blocking. FrameReady
// events inside the per-unit gap are discarded before fan-out; all
// other event types always go out.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if _, ok := ev.(FrameReady); ok && !b.admitFrame(ev.Unit()) {
		atomic.AddUint64(&b.rateLimited, 1)
		return
	}
	atomic.AddUint64(&b.published, 1)
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			atomic.AddUint64(&sub.sent, 1)
		default:
			atomic.AddUint64(&sub.dropped, 1)
		}
	}
}

// admitFrame decides whether a FrameReady for unit clears the per-unit
// spacing, and records the admission time when it does.
func (b *Bus) admitFrame(unit string) bool {
	b.frameMu.Lock()
	defer b.frameMu.Unlock()
	now := b.now()
	if last, ok := b.lastFrame[unit]; ok && now.Sub(last) < b.frameGap {
		return false
	}
	b.lastFrame[unit] = now
	return true
}

// Stats reports delivery counters for one subscriber.
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.subs[id]
	if !ok {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.sent),
		Dropped: atomic.LoadUint64(&sub.dropped),
	}, nil
}

// Published reports events fanned out and FrameReady events discarded
// by the rate limit.
func (b *Bus) Published() (published, rateLimited uint64) {
	return atomic.LoadUint64(&b.published), atomic.LoadUint64(&b.rateLimited)
}

// Close stops fan-out. Subscriber channels stay open for their owners
// to drain. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.subs = make(map[string]*subscriber)
	b.log.Debug("display bus closed")
}
