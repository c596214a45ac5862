package calendar

import (
	"fmt"
	"time"

	"agenda/pkg/model"
)

// BuildOptions configures FromOpeningHours.
type BuildOptions struct {
	SlotDuration time.Duration
	OpeningHours []model.OpeningWindow
	From         time.Time
	Days         int
	// NotBefore drops slots starting before it; the first kept slot is rounded up to the next
	// slot boundary of its day. Zero keeps every slot.
	NotBefore time.Time
}

// FromOpeningHours builds a calendar holding the opening windows of Days consecutive days
// starting at the date of From.
func FromOpeningHours(opts BuildOptions) (*Calendar, error) {
	c, err := New(opts.SlotDuration)
	if err != nil {
		return nil, err
	}
	if err := c.AddOpeningHours(opts.OpeningHours, opts.From, opts.Days, opts.NotBefore); err != nil {
		return nil, err
	}
	return c, nil
}

// AddOpeningHours adds the given daily windows for days consecutive days starting at from.
// Either every window is added or, when one of them overlaps the calendar, none is.
func (c *Calendar) AddOpeningHours(hours []model.OpeningWindow, from time.Time, days int, notBefore time.Time) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	var incoming []*Segment
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i)
		for _, w := range hours {
			start, end := w.Start.On(day), w.End.On(day)
			if !notBefore.IsZero() {
				if !end.After(notBefore) {
					continue
				}
				if start.Before(notBefore) {
					start = c.CeilToSlot(notBefore)
				}
				if !end.After(start) {
					continue
				}
			}
			seg, err := NewSegment(start, end, c.slotDuration)
			if err != nil {
				return fmt.Errorf("opening window %s on %s: %w", w, day.Format(time.DateOnly), err)
			}
			incoming = append(incoming, seg)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	segments := c.segments
	for _, seg := range incoming {
		var err error
		if segments, _, err = insertSegment(segments, seg); err != nil {
			return fmt.Errorf("opening window on %s: %w", seg.Start().Format(time.DateOnly), err)
		}
	}
	c.segments = segments
	return nil
}

// CeilToSlot rounds t up to the next slot boundary counted from midnight.
func (c *Calendar) CeilToSlot(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	if rem := offset % c.slotDuration; rem != 0 {
		offset += c.slotDuration - rem
	}
	return midnight.Add(offset)
}
