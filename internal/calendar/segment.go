package calendar

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

var segmentSeq atomic.Uint64

// Segment is an ordered, contiguous run of slots covering [Start, End).
// A segment never changes after construction; joins and splits produce new segments
// that share the underlying slots.
type Segment struct {
	id           uint64
	start        time.Time
	end          time.Time
	slotDuration time.Duration
	slots        []*Slot
	index        map[int64]int
}

// NewSegment generates the slots for [start, end). The range must be a whole number of slots.
func NewSegment(start, end time.Time, slotDuration time.Duration) (*Segment, error) {
	if slotDuration <= 0 {
		return nil, ErrInvalidSlotDuration
	}
	if !end.After(start) {
		return nil, ErrInvalidRange
	}
	if end.Sub(start)%slotDuration != 0 {
		return nil, fmt.Errorf("segment %s-%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), ErrMisaligned)
	}

	id := segmentSeq.Add(1)
	slots := make([]*Slot, 0, int(end.Sub(start)/slotDuration))
	for t := start; t.Before(end); t = t.Add(slotDuration) {
		slots = append(slots, newSlot(t, id))
	}
	return newSegment(id, start, end, slotDuration, slots), nil
}

func newSegment(id uint64, start, end time.Time, slotDuration time.Duration, slots []*Slot) *Segment {
	s := &Segment{
		id:           id,
		start:        start,
		end:          end,
		slotDuration: slotDuration,
		slots:        slots,
	}
	s.buildIndex()
	return s
}

func (s *Segment) buildIndex() {
	s.index = make(map[int64]int, len(s.slots))
	for i, slot := range s.slots {
		s.index[slot.start.UnixNano()] = i
	}
}

func (s *Segment) ID() uint64                  { return s.id }
func (s *Segment) Start() time.Time            { return s.start }
func (s *Segment) End() time.Time              { return s.end }
func (s *Segment) SlotDuration() time.Duration { return s.slotDuration }
func (s *Segment) Len() int                    { return len(s.slots) }

func (s *Segment) String() string {
	return fmt.Sprintf("segment(%s - %s, %d slots)", s.start.Format(time.RFC3339), s.end.Format(time.RFC3339), len(s.slots))
}

// Slots returns a copy of the slot sequence.
func (s *Segment) Slots() []*Slot {
	return append([]*Slot(nil), s.slots...)
}

// Slot returns the slot starting exactly at t.
func (s *Segment) Slot(t time.Time) (*Slot, bool) {
	i, ok := s.index[t.UnixNano()]
	if !ok {
		return nil, false
	}
	return s.slots[i], true
}

// Contains reports whether [start, end) lies fully inside the segment.
func (s *Segment) Contains(start, end time.Time) bool {
	return !start.Before(s.start) && !end.After(s.end)
}

func (s *Segment) Overlaps(start, end time.Time) bool {
	return s.start.Before(end) && s.end.After(start)
}

// Slice returns the slots whose start time lies in [start, end).
func (s *Segment) Slice(start, end time.Time) []*Slot {
	lo, hi := s.bounds(start, end)
	if lo >= hi {
		return nil
	}
	return append([]*Slot(nil), s.slots[lo:hi]...)
}

func (s *Segment) bounds(start, end time.Time) (int, int) {
	lo := sort.Search(len(s.slots), func(i int) bool {
		return !s.slots[i].start.Before(start)
	})
	hi := sort.Search(len(s.slots), func(i int) bool {
		return !s.slots[i].start.Before(end)
	})
	return lo, hi
}

// preceding returns the slot right before the one starting at t, if any.
func (s *Segment) preceding(t time.Time) (*Slot, bool) {
	i, ok := s.index[t.UnixNano()]
	if !ok || i == 0 {
		return nil, false
	}
	return s.slots[i-1], true
}

// Join merges two exactly adjacent segments into a new one covering their union.
// The inputs should not be used independently afterwards.
func (s *Segment) Join(other *Segment) (*Segment, error) {
	if other.slotDuration != s.slotDuration {
		return nil, ErrSlotDurationMismatch
	}

	var first, second *Segment
	switch {
	case s.end.Equal(other.start):
		first, second = s, other
	case other.end.Equal(s.start):
		first, second = other, s
	default:
		return nil, fmt.Errorf("join %s with %s: %w", s, other, ErrNotAdjacent)
	}

	slots := make([]*Slot, 0, len(first.slots)+len(second.slots))
	slots = append(slots, first.slots...)
	slots = append(slots, second.slots...)
	return newSegment(segmentSeq.Add(1), first.start, second.end, s.slotDuration, slots), nil
}

// Subsegment returns a view over [start, end). The segment itself is returned when the
// range matches it exactly.
func (s *Segment) Subsegment(start, end time.Time) (*Segment, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}
	if !s.Contains(start, end) {
		return nil, fmt.Errorf("subsegment %s-%s of %s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), s, ErrOutOfRange)
	}
	if start.Equal(s.start) && end.Equal(s.end) {
		return s, nil
	}
	if start.Sub(s.start)%s.slotDuration != 0 || end.Sub(s.start)%s.slotDuration != 0 {
		return nil, ErrMisaligned
	}

	lo, hi := s.bounds(start, end)
	slots := append([]*Slot(nil), s.slots[lo:hi]...)
	return newSegment(segmentSeq.Add(1), start, end, s.slotDuration, slots), nil
}

// GridMismatch returns how far t is from the offer grid. The grid starts at the
// segment's opening time of day and repeats every gridSpan; zero means t lies on it.
func (s *Segment) GridMismatch(t time.Time, gridSpan time.Duration) time.Duration {
	opening := s.start.In(t.Location())
	y, m, d := t.Date()
	anchor := time.Date(y, m, d, opening.Hour(), opening.Minute(), 0, 0, t.Location())

	const day = 24 * time.Hour
	offset := t.Sub(anchor) % day
	if offset < 0 {
		offset += day
	}
	return offset % gridSpan
}
