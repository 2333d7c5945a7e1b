// internal/fieldbus/types.go
package fieldbus

import (
	"time"

	"github.com/tamzrod/fieldrec/internal/snapshot"
)

// ConnectionState labels poller connectivity.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// PublishFunc receives every snapshot the poller emits.
// The snapshot is a clone; the receiver may keep it.
type PublishFunc func(snapshot.Snapshot)

// Config is the runtime config of one poller.
// Endpoint geometry lives in the dialer, not here.
type Config struct {
	UnitID string

	// Count is the block size; every published snapshot covers
	// indices 1..Count.
	Count int

	Interval      time.Duration
	FailThreshold int
	BackoffStart  time.Duration
	BackoffMax    time.Duration
}
