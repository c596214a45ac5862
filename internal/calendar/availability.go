package calendar

import (
	"time"
)

type WindowKind int

const (
	// KindNone is a free window that is neither on the grid nor right after a booking.
	KindNone WindowKind = iota
	// KindDefault is a free window starting on the offer grid.
	KindDefault
	// KindSpecial is a free, off-grid window starting right where a booking ends.
	KindSpecial
)

func (k WindowKind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindSpecial:
		return "special"
	default:
		return "none"
	}
}

// SegmentWindows holds the window start slots found in one segment.
type SegmentWindows struct {
	SegmentStart time.Time
	SegmentEnd   time.Time
	Default      []*Slot
	Special      []*Slot
}

// SlotsNeeded is the number of slots a booking of the given duration occupies.
func (c *Calendar) SlotsNeeded(duration time.Duration) int {
	n := int(duration / c.slotDuration)
	if duration%c.slotDuration != 0 {
		n++
	}
	return n
}

func (c *Calendar) checkGrid(gridSpan time.Duration) error {
	if gridSpan <= 0 || gridSpan%c.slotDuration != 0 {
		return ErrInvalidGrid
	}
	return nil
}

// AvailableWindows searches every segment intersecting [minStart, maxStart+duration) for runs
// of free slots long enough for duration. Windows starting on the grid are default windows;
// off-grid windows qualify as special only when the slot right before them is booked.
// Windows starting after maxStart are not returned.
func (c *Calendar) AvailableWindows(minStart, maxStart time.Time, duration, gridSpan time.Duration) ([]SegmentWindows, error) {
	if duration <= 0 {
		return nil, ErrInvalidRange
	}
	if err := c.checkGrid(gridSpan); err != nil {
		return nil, err
	}
	if maxStart.Before(minStart) {
		return nil, nil
	}

	n := c.SlotsNeeded(duration)
	limit := maxStart.Add(duration)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []SegmentWindows
	lo, hi := c.involved(minStart, limit)
	for _, seg := range c.segments[lo:hi] {
		windows := SegmentWindows{SegmentStart: seg.start, SegmentEnd: seg.end}
		from, to := seg.bounds(minStart, limit)
		if to-from < n {
			result = append(result, windows)
			continue
		}

		// snapshot the flags once so a window is judged against a single view
		slots := seg.slots[from:to]
		booked := make([]bool, len(slots))
		busy := make([]int, len(slots)+1)
		for i, s := range slots {
			booked[i] = s.IsBooked()
			busy[i+1] = busy[i]
			if booked[i] {
				busy[i+1]++
			}
		}

		prevBooked := from > 0 && seg.slots[from-1].IsBooked()
		for i := 0; i+n <= len(slots); i++ {
			start := slots[i].start
			if start.After(maxStart) {
				break
			}
			if busy[i+n]-busy[i] == 0 {
				if seg.GridMismatch(start, gridSpan) == 0 {
					windows.Default = append(windows.Default, slots[i])
				} else if prevBooked {
					windows.Special = append(windows.Special, slots[i])
				}
			}
			prevBooked = booked[i]
		}
		result = append(result, windows)
	}
	return result, nil
}

// ClassifyWindow checks a single window without touching any state. Slots listed in released
// are treated as free, which lets callers ask whether a window would be available once an
// existing booking is gone. It fails with ErrClosed when the window leaves its segment and
// with ErrAlreadyBooked when a slot is taken.
func (c *Calendar) ClassifyWindow(start time.Time, duration, gridSpan time.Duration, released []*Slot) (WindowKind, error) {
	if duration <= 0 {
		return KindNone, ErrInvalidRange
	}
	if err := c.checkGrid(gridSpan); err != nil {
		return KindNone, err
	}

	free := make(map[*Slot]struct{}, len(released))
	for _, s := range released {
		free[s] = struct{}{}
	}
	isBooked := func(s *Slot) bool {
		if _, ok := free[s]; ok {
			return false
		}
		return s.IsBooked()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	seg, ok := c.containing(start, start.Add(duration))
	if !ok {
		return KindNone, ErrClosed
	}
	slots := seg.Slice(start, start.Add(duration))
	if len(slots) == 0 || !slots[0].start.Equal(start) {
		return KindNone, ErrMisaligned
	}
	for _, s := range slots {
		if isBooked(s) {
			return KindNone, ErrAlreadyBooked
		}
	}

	if seg.GridMismatch(start, gridSpan) == 0 {
		return KindDefault, nil
	}
	if prev, ok := seg.preceding(start); ok && isBooked(prev) {
		return KindSpecial, nil
	}
	return KindNone, nil
}

// Starts flattens the window start slots of every segment into start times.
func Starts(windows []SegmentWindows) (defaults, specials []time.Time) {
	for _, w := range windows {
		for _, s := range w.Default {
			defaults = append(defaults, s.start)
		}
		for _, s := range w.Special {
			specials = append(specials, s.start)
		}
	}
	return defaults, specials
}
