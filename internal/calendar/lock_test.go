package calendar

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSlots_CanonicalOrder(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(13, 0)})
	a := c.Slots(at(10, 30), at(11, 0), true)
	b := c.Slots(at(10, 0), at(10, 45), true)

	guard := LockSlots(a, b)
	defer guard.Unlock()

	locked := guard.Slots()
	if len(locked) != 12 {
		t.Fatalf("expected 12 distinct slots, got %d", len(locked))
	}
	for i := 1; i < len(locked); i++ {
		if !slotLess(locked[i-1], locked[i]) {
			t.Fatalf("slots not in canonical order at %d: %v then %v", i, locked[i-1], locked[i])
		}
	}
}

func TestSlotGuard_UnlockIdempotent(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(10, 0)})
	slots := c.Slots(at(9, 0), at(9, 30), true)

	guard := LockSlots(slots)
	guard.Unlock()
	guard.Unlock()

	again := LockSlots(slots)
	again.Unlock()
}

func TestReserve_AllOrNothing(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(13, 0)})
	book(t, c, at(10, 20), at(10, 25))

	slots := c.Slots(at(10, 0), at(10, 30), true)
	guard := LockSlots(slots)
	err := c.Reserve(slots)
	guard.Unlock()

	if !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("Reserve() error = %v, want ErrAlreadyBooked", err)
	}
	booked := 0
	for _, s := range slots {
		if s.IsBooked() {
			booked++
		}
	}
	if booked != 1 {
		t.Errorf("expected only the pre-booked slot to stay booked, got %d booked", booked)
	}
}

func TestFree_Idempotent(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(10, 0)})
	book(t, c, at(9, 0), at(9, 30))

	slots := c.Slots(at(9, 0), at(9, 30), true)
	guard := LockSlots(slots)
	c.Free(slots)
	c.Free(slots)
	guard.Unlock()

	ok, err := c.IsAvailable(at(9, 0), at(9, 30))
	if err != nil || !ok {
		t.Errorf("IsAvailable() = %v, %v, want true", ok, err)
	}
}

func TestReserve_ConcurrentOverlapping(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(13, 0)})

	const workers = 32
	var (
		wg      sync.WaitGroup
		success atomic.Int32
		booked  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, 0).Add(time.Duration(i%4) * 5 * time.Minute)
			slots := c.Slots(start, start.Add(30*time.Minute), true)
			guard := LockSlots(slots)
			defer guard.Unlock()
			switch err := c.Reserve(slots); {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrAlreadyBooked):
				booked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success.Load() != 1 {
		t.Errorf("expected exactly one overlapping reservation to succeed, got %d", success.Load())
	}
	if booked.Load() != workers-1 {
		t.Errorf("expected %d AlreadyBooked failures, got %d", workers-1, booked.Load())
	}
}

func TestLockSlots_NoDeadlock(t *testing.T) {
	c := newCalendar(t, [2]time.Time{at(9, 0), at(13, 0)})
	first := c.Slots(at(10, 0), at(10, 30), true)
	second := c.Slots(at(10, 15), at(10, 45), true)

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				LockSlots(first, second).Unlock()
			}()
			go func() {
				defer wg.Done()
				LockSlots(second, first).Unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}
