// internal/snapshot/snapshot.go
package snapshot

import (
	"strconv"
	"time"
)

// Unavailable is the display form of a reading that has no valid value.
// A reading is never represented by a missing index, only by this sentinel.
const Unavailable = "--"

// Value is one instrument reading slot.
// Invalid values render as the Unavailable sentinel and carry no number.
type Value struct {
	Reading uint16
	Valid   bool
}

func (v Value) String() string {
	if !v.Valid {
		return Unavailable
	}
	return strconv.Itoa(int(v.Reading))
}

// Snapshot is the complete point-in-time view of one instrument block.
// Indices are 1-based and contiguous: every index 1..Len() is always
// populated, either with a valid reading or with the Unavailable sentinel.
// A published Snapshot MUST NOT be mutated afterwards; producers publish
// clones.
type Snapshot struct {
	Taken  time.Time
	values []Value
}

// New returns a snapshot of the given size with every slot Unavailable.
func New(count int) Snapshot {
	return Snapshot{values: make([]Value, count)}
}

// Len reports the number of slots.
func (s Snapshot) Len() int { return len(s.values) }

// At returns the value at a 1-based index.
// Out-of-range indices yield an Unavailable value.
func (s Snapshot) At(index int) Value {
	if index < 1 || index > len(s.values) {
		return Value{}
	}
	return s.values[index-1]
}

// Set stores a valid reading at a 1-based index.
// Out-of-range indices are ignored.
func (s *Snapshot) Set(index int, reading uint16) {
	if index < 1 || index > len(s.values) {
		return
	}
	s.values[index-1] = Value{Reading: reading, Valid: true}
}

// Fill overwrites every slot from the readings, index 1 first.
// len(readings) MUST equal Len.
func (s *Snapshot) Fill(readings []uint16) {
	for i, r := range readings {
		if i >= len(s.values) {
			return
		}
		s.values[i] = Value{Reading: r, Valid: true}
	}
}

// Reset returns every slot to Unavailable, keeping the size.
func (s *Snapshot) Reset() {
	for i := range s.values {
		s.values[i] = Value{}
	}
}

// Clone returns an independent copy safe to publish.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Taken: s.Taken, values: make([]Value, len(s.values))}
	copy(out.values, s.values)
	return out
}
