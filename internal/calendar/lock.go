package calendar

import (
	"sort"
	"sync"
)

// SlotGuard holds the locks of a slot set until Unlock is called.
type SlotGuard struct {
	slots []*Slot
	once  sync.Once
}

// LockSlots locks the union of the given slot sets in canonical order: ascending start time,
// then ascending origin segment id. Every call site that needs more than one slot lock must go
// through here. Release the guard with a deferred Unlock.
func LockSlots(sets ...[]*Slot) *SlotGuard {
	seen := make(map[*Slot]struct{})
	var slots []*Slot
	for _, set := range sets {
		for _, s := range set {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			slots = append(slots, s)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return slotLess(slots[i], slots[j])
	})

	for _, s := range slots {
		s.mu.Lock()
	}
	return &SlotGuard{slots: slots}
}

// Slots returns the locked slots in lock order.
func (g *SlotGuard) Slots() []*Slot {
	return append([]*Slot(nil), g.slots...)
}

// Unlock releases every lock in reverse order. It is safe to call more than once.
func (g *SlotGuard) Unlock() {
	g.once.Do(func() {
		for i := len(g.slots) - 1; i >= 0; i-- {
			g.slots[i].mu.Unlock()
		}
	})
}

// Reserve marks all slots booked, or none of them. The caller must hold the slot locks.
func (c *Calendar) Reserve(slots []*Slot) error {
	for _, s := range slots {
		if s.IsRetired() {
			return ErrClosed
		}
		if s.IsBooked() {
			return ErrAlreadyBooked
		}
	}
	for _, s := range slots {
		s.booked.Store(true)
	}
	return nil
}

// Free marks all slots unbooked. It is idempotent. The caller must hold the slot locks.
func (c *Calendar) Free(slots []*Slot) {
	for _, s := range slots {
		s.booked.Store(false)
	}
}

// Restore marks slots booked again without checks. It undoes a Free during rollback; the
// caller must hold the slot locks.
func (c *Calendar) Restore(slots []*Slot) {
	for _, s := range slots {
		s.booked.Store(true)
	}
}
