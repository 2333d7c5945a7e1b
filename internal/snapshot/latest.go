// internal/snapshot/latest.go
package snapshot

import "sync"

// Latest is a single-slot, latest-wins hand-off between one producer and
// any number of readers. Store overwrites; Load never blocks the producer.
// The zero value is ready to use.
type Latest struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// Store publishes a snapshot, replacing any previous one.
func (l *Latest) Store(s Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.set = true
	l.mu.Unlock()
}

// Load returns the most recently stored snapshot.
// ok is false until the first Store.
func (l *Latest) Load() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.set
}
