// internal/fieldbus/runner.go
package fieldbus

import (
	"context"
	"time"
)

// Run drives the state machine until ctx is cancelled.
// One goroutine per unit. No fault terminates the loop; the endpoint
// handle is released before Run returns.
func (p *Poller) Run(ctx context.Context) {
	p.init()
	defer p.release()

	for ctx.Err() == nil {
		p.step(ctx)
	}
}

// step runs one transition: a dial attempt while disconnected, otherwise
// one poll cycle.
func (p *Poller) step(ctx context.Context) {
	if p.inst == nil {
		p.connect(ctx)
		return
	}
	p.pollOnce(ctx)
}

// sleepCtx waits d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
