package model

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is an offset from midnight.
type TimeOfDay time.Duration

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// On returns the instant at this time of day on the date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(t))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// OpeningWindow is a daily opening interval, e.g. 09:00-13:00.
type OpeningWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w OpeningWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// ParseOpeningHours parses a comma separated list such as "09:00-13:00,15:00-21:00".
func ParseOpeningHours(s string) ([]OpeningWindow, error) {
	var windows []OpeningWindow
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid opening window %q", part)
		}
		start, err := ParseTimeOfDay(bounds[0])
		if err != nil {
			return nil, err
		}
		end, err := ParseTimeOfDay(bounds[1])
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("opening window %q ends before it starts", part)
		}
		if len(windows) > 0 && start < windows[len(windows)-1].End {
			return nil, fmt.Errorf("opening window %q overlaps or is out of order", part)
		}
		windows = append(windows, OpeningWindow{Start: start, End: end})
	}
	return windows, nil
}

// Policy holds the business rules the reservation manager enforces.
type Policy struct {
	SlotDurationMin           int
	GridSpanMin               int
	MinAdvanceBookingMin      int
	MinAdvanceCancellationMin int
	OpeningHours              []OpeningWindow
	Location                  *time.Location
}

func (p Policy) SlotDuration() time.Duration {
	return time.Duration(p.SlotDurationMin) * time.Minute
}

func (p Policy) GridSpan() time.Duration {
	return time.Duration(p.GridSpanMin) * time.Minute
}

func (p Policy) MinAdvanceBooking() time.Duration {
	return time.Duration(p.MinAdvanceBookingMin) * time.Minute
}

func (p Policy) MinAdvanceCancellation() time.Duration {
	return time.Duration(p.MinAdvanceCancellationMin) * time.Minute
}

func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Availability is the result of a window search, split by grid classification.
type Availability struct {
	Default []time.Time `json:"default"`
	Special []time.Time `json:"special"`
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
