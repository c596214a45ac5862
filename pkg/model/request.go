package model

import "time"

// Overrides relax policy checks for privileged callers.
type Overrides struct {
	// AllowPast permits operations on elapsed times and implies SkipAdvanceWindow.
	AllowPast bool `json:"allow_past,omitempty"`
	// SkipAdvanceWindow ignores the minimum advance booking and cancellation windows.
	SkipAdvanceWindow bool `json:"skip_advance_window,omitempty"`
}

// SkipsAdvanceWindow reports whether the advance windows are ignored.
func (o Overrides) SkipsAdvanceWindow() bool {
	return o.AllowPast || o.SkipAdvanceWindow
}

type ReservationRequest struct {
	User        string    `json:"user" validate:"required,min=1,max=100,printable"`
	ServiceName string    `json:"service_name" validate:"required,min=1,max=100,printable"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	DurationMin *int      `json:"duration_min,omitempty" validate:"omitempty,min=1,max=1440"`
	Overrides   Overrides `json:"-"`
	// AnyAlignment accepts any free slot-aligned start in dry-runs instead of only the
	// offered default and special windows.
	AnyAlignment bool `json:"any_alignment,omitempty"`
}

// ReservationUpdate describes a change to an existing reservation. Omitted fields keep
// their current value.
type ReservationUpdate struct {
	User         string     `json:"user" validate:"required,min=1,max=100,printable"`
	ID           string     `json:"id,omitempty" validate:"omitempty,max=64"`
	OldStartTime *time.Time `json:"old_start_time,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	ServiceName  string     `json:"service_name,omitempty" validate:"omitempty,min=1,max=100,printable"`
	DurationMin  *int       `json:"duration_min,omitempty" validate:"omitempty,min=1,max=1440"`
	Overrides    Overrides  `json:"-"`
	AnyAlignment bool       `json:"any_alignment,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *ReservationUpdate) IsEmpty() bool {
	return u.StartTime == nil && u.ServiceName == "" && u.DurationMin == nil
}

type CancelRequest struct {
	User        string     `json:"user" validate:"required,min=1,max=100,printable"`
	ID          string     `json:"id,omitempty" validate:"omitempty,max=64"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	ServiceName string     `json:"service_name,omitempty" validate:"omitempty,min=1,max=100,printable"`
	Overrides   Overrides  `json:"-"`
}

type AvailabilityQuery struct {
	ServiceName  string     `json:"service_name" validate:"required,min=1,max=100,printable"`
	MinStartTime time.Time  `json:"min_start_time" validate:"required"`
	MaxStartTime *time.Time `json:"max_start_time,omitempty"`
	DurationMin  *int       `json:"duration_min,omitempty" validate:"omitempty,min=1,max=1440"`
	AllowPast    bool       `json:"-"`
}
