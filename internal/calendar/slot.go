package calendar

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Slot is the smallest bookable unit.
type Slot struct {
	start  time.Time
	origin uint64

	mu      sync.Mutex
	booked  atomic.Bool
	retired atomic.Bool
}

func newSlot(start time.Time, origin uint64) *Slot {
	return &Slot{start: start, origin: origin}
}

func (s *Slot) Start() time.Time { return s.start }

// Origin is the id of the segment that generated the slot. It never changes,
// even when the slot later moves into a joined or split segment.
func (s *Slot) Origin() uint64 { return s.origin }

func (s *Slot) IsBooked() bool { return s.booked.Load() }

// IsRetired reports whether the slot was removed from its calendar.
func (s *Slot) IsRetired() bool { return s.retired.Load() }

func (s *Slot) String() string {
	status := "free"
	if s.IsBooked() {
		status = "booked"
	}
	return fmt.Sprintf("slot(%s %s)", s.start.Format(time.RFC3339), status)
}

func slotLess(a, b *Slot) bool {
	if !a.start.Equal(b.start) {
		return a.start.Before(b.start)
	}
	return a.origin < b.origin
}

// Difference returns the slots of a that are not in b, preserving the order of a.
func Difference(a, b []*Slot) []*Slot {
	if len(b) == 0 {
		return append([]*Slot(nil), a...)
	}
	exclude := make(map[*Slot]struct{}, len(b))
	for _, s := range b {
		exclude[s] = struct{}{}
	}
	var out []*Slot
	for _, s := range a {
		if _, ok := exclude[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// SymmetricDifference splits two slot sets into the slots only in oldSet and the slots only
// in newSet. Slots present in both are left out of either result.
func SymmetricDifference(oldSet, newSet []*Slot) (onlyOld, onlyNew []*Slot) {
	return Difference(oldSet, newSet), Difference(newSet, oldSet)
}

func anyBooked(slots []*Slot) bool {
	for _, s := range slots {
		if s.IsBooked() {
			return true
		}
	}
	return false
}
