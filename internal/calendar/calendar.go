package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"agenda/pkg/model"
)

// Calendar is an ordered collection of non-overlapping segments sharing one slot duration.
type Calendar struct {
	mu           sync.RWMutex
	slotDuration time.Duration
	segments     []*Segment
}

func New(slotDuration time.Duration) (*Calendar, error) {
	if slotDuration <= 0 {
		return nil, ErrInvalidSlotDuration
	}
	return &Calendar{slotDuration: slotDuration}, nil
}

func (c *Calendar) SlotDuration() time.Duration {
	return c.slotDuration
}

// Segments returns a snapshot of the segment list.
func (c *Calendar) Segments() []*Segment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Segment(nil), c.segments...)
}

func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.segments)
}

// Aligned reports whether t falls on a slot boundary of the day.
func (c *Calendar) Aligned(t time.Time) bool {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return t.Sub(midnight)%c.slotDuration == 0
}

// AddSegment adds the opening window [start, end). A window exactly adjacent to an existing
// segment is joined with it instead of being stored separately.
func (c *Calendar) AddSegment(start, end time.Time) (*Segment, error) {
	seg, err := NewSegment(start, end, c.slotDuration)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	segments, merged, err := insertSegment(c.segments, seg)
	if err != nil {
		return nil, err
	}
	c.segments = segments
	return merged, nil
}

// insertSegment returns a new segment list with seg inserted, joining adjacent neighbours.
// The input list is never modified.
func insertSegment(segments []*Segment, seg *Segment) ([]*Segment, *Segment, error) {
	if len(segments) > 0 && segments[0].slotDuration != seg.slotDuration {
		return nil, nil, ErrSlotDurationMismatch
	}

	idx := sort.Search(len(segments), func(i int) bool {
		return !segments[i].start.Before(seg.start)
	})

	var prev, next *Segment
	if idx > 0 {
		prev = segments[idx-1]
		if seg.start.Before(prev.end) {
			return nil, nil, fmt.Errorf("%s: %w with %s", seg, ErrOverlap, prev)
		}
	}
	if idx < len(segments) {
		next = segments[idx]
		if seg.end.After(next.start) {
			return nil, nil, fmt.Errorf("%s: %w with %s", seg, ErrOverlap, next)
		}
	}

	lo, hi := idx, idx
	merged := seg
	var err error
	if prev != nil && prev.end.Equal(merged.start) {
		if merged, err = prev.Join(merged); err != nil {
			return nil, nil, err
		}
		lo--
	}
	if next != nil && merged.end.Equal(next.start) {
		if merged, err = merged.Join(next); err != nil {
			return nil, nil, err
		}
		hi++
	}

	out := make([]*Segment, 0, len(segments)-(hi-lo)+1)
	out = append(out, segments[:lo]...)
	out = append(out, merged)
	out = append(out, segments[hi:]...)
	return out, merged, nil
}

// RemoveSegment removes [start, end) from the calendar, splitting the segments it cuts.
// With forbidIfBooked the calendar is left unchanged when any slot in range is booked.
// Slots that are locked by an in-flight operation make the removal fail with ErrSlotBusy.
func (c *Calendar) RemoveSegment(start, end time.Time, forbidIfBooked bool) error {
	if !end.After(start) {
		return ErrInvalidRange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lo, hi := c.involved(start, end)
	if lo >= hi {
		return nil
	}

	var (
		removed   []*Slot
		survivors []*Segment
	)
	for _, seg := range c.segments[lo:hi] {
		removed = append(removed, seg.Slice(start, end)...)
		if start.After(seg.start) {
			left, err := seg.Subsegment(seg.start, start)
			if err != nil {
				return err
			}
			survivors = append(survivors, left)
		}
		if end.Before(seg.end) {
			right, err := seg.Subsegment(end, seg.end)
			if err != nil {
				return err
			}
			survivors = append(survivors, right)
		}
	}

	locked := make([]*Slot, 0, len(removed))
	release := func() {
		for _, s := range locked {
			s.mu.Unlock()
		}
	}
	for _, s := range removed {
		if !s.mu.TryLock() {
			release()
			return ErrSlotBusy
		}
		locked = append(locked, s)
	}
	defer release()

	if forbidIfBooked && anyBooked(removed) {
		return ErrHasBookings
	}

	for _, s := range removed {
		s.retired.Store(true)
	}

	out := make([]*Segment, 0, len(c.segments)-(hi-lo)+len(survivors))
	out = append(out, c.segments[:lo]...)
	out = append(out, survivors...)
	out = append(out, c.segments[hi:]...)
	c.segments = out
	return nil
}

// involved returns the index range of segments intersecting [start, end). Caller holds c.mu.
func (c *Calendar) involved(start, end time.Time) (int, int) {
	lo := sort.Search(len(c.segments), func(i int) bool {
		return c.segments[i].end.After(start)
	})
	hi := sort.Search(len(c.segments), func(i int) bool {
		return !c.segments[i].start.Before(end)
	})
	return lo, hi
}

// FindSegmentContaining returns the segment holding all of [start, end).
func (c *Calendar) FindSegmentContaining(start, end time.Time) (*Segment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containing(start, end)
}

func (c *Calendar) containing(start, end time.Time) (*Segment, bool) {
	if end.Before(start) {
		return nil, false
	}
	idx := sort.Search(len(c.segments), func(i int) bool {
		return c.segments[i].start.After(start)
	}) - 1
	if idx < 0 {
		return nil, false
	}
	seg := c.segments[idx]
	if !seg.Contains(start, end) {
		return nil, false
	}
	return seg, true
}

// Slots returns the slots starting in [start, end). With sameSegmentOnly the range must lie
// inside a single segment, otherwise the result is empty.
func (c *Calendar) Slots(start, end time.Time, sameSegmentOnly bool) []*Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sameSegmentOnly {
		seg, ok := c.containing(start, end)
		if !ok {
			return nil
		}
		return seg.Slice(start, end)
	}

	var slots []*Slot
	lo, hi := c.involved(start, end)
	for _, seg := range c.segments[lo:hi] {
		slots = append(slots, seg.Slice(start, end)...)
	}
	return slots
}

// SlotsWithin is Slots with sameSegmentOnly, reporting ErrClosed when no segment holds the range.
func (c *Calendar) SlotsWithin(start, end time.Time) ([]*Slot, error) {
	slots := c.Slots(start, end, true)
	if len(slots) == 0 {
		return nil, ErrClosed
	}
	return slots, nil
}

// IsAvailable reports whether [start, end) lies in one segment and none of its slots is booked.
func (c *Calendar) IsAvailable(start, end time.Time) (bool, error) {
	slots, err := c.SlotsWithin(start, end)
	if err != nil {
		return false, err
	}
	return !anyBooked(slots), nil
}

// Join merges the segments of other into c. Either every segment is merged or none is.
func (c *Calendar) Join(other *Calendar) error {
	if other == c {
		return nil
	}
	if other.slotDuration != c.slotDuration {
		return ErrSlotDurationMismatch
	}
	incoming := other.Segments()

	c.mu.Lock()
	defer c.mu.Unlock()

	segments := c.segments
	for _, seg := range incoming {
		var err error
		if segments, _, err = insertSegment(segments, seg); err != nil {
			return err
		}
	}
	c.segments = segments
	return nil
}

// OpeningHours returns the segments intersecting day, clipped to that day.
func (c *Calendar) OpeningHours(day time.Time) []model.Interval {
	y, m, d := day.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var hours []model.Interval
	lo, hi := c.involved(dayStart, dayEnd)
	for _, seg := range c.segments[lo:hi] {
		start, end := seg.start, seg.end
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		hours = append(hours, model.Interval{Start: start, End: end})
	}
	return hours
}
