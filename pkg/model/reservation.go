package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusPendingCancelation  Status = "pending_cancelation"
	StatusPendingUpdate       Status = "pending_update"
	StatusDeleted             Status = "deleted"
)

// IsPending reports whether the status waits for a confirmation.
func (s Status) IsPending() bool {
	switch s {
	case StatusPendingConfirmation, StatusPendingCancelation, StatusPendingUpdate:
		return true
	}
	return false
}

// Reservation records a booked interval. Identity and time attributes are fixed at
// construction; only the status fields change over its lifetime.
type Reservation struct {
	id          string
	user        string
	serviceName string
	startTime   time.Time
	endTime     time.Time
	createdAt   time.Time

	status             Status
	statusChangedAt    time.Time
	confirmed          bool
	pendingReplacement string
	replaces           string
}

func NewReservation(id, user, serviceName string, start, end, createdAt time.Time, status Status) *Reservation {
	return &Reservation{
		id:              id,
		user:            user,
		serviceName:     serviceName,
		startTime:       start,
		endTime:         end,
		createdAt:       createdAt,
		status:          status,
		statusChangedAt: createdAt,
		confirmed:       status == StatusConfirmed,
	}
}

func (r *Reservation) ID() string                 { return r.id }
func (r *Reservation) User() string               { return r.user }
func (r *Reservation) ServiceName() string        { return r.serviceName }
func (r *Reservation) StartTime() time.Time       { return r.startTime }
func (r *Reservation) EndTime() time.Time         { return r.endTime }
func (r *Reservation) CreatedAt() time.Time       { return r.createdAt }
func (r *Reservation) Status() Status             { return r.status }
func (r *Reservation) StatusChangedAt() time.Time { return r.statusChangedAt }
func (r *Reservation) IsConfirmed() bool          { return r.confirmed }

// PendingReplacement is the id of the proposed replacement while an update waits for confirmation.
func (r *Reservation) PendingReplacement() string { return r.pendingReplacement }

// Replaces is the id of the reservation a proposed replacement would supersede.
func (r *Reservation) Replaces() string { return r.replaces }

func (r *Reservation) Duration() time.Duration {
	return r.endTime.Sub(r.startTime)
}

// DurationMin returns the reservation length in whole minutes, rounded up.
func (r *Reservation) DurationMin() int {
	d := r.Duration()
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// Contains reports whether instant falls inside [start, end).
func (r *Reservation) Contains(instant time.Time) bool {
	return !instant.Before(r.startTime) && instant.Before(r.endTime)
}

func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.startTime.Before(end) && r.endTime.After(start)
}

// SetStatus changes the status and refreshes the status change timestamp.
func (r *Reservation) SetStatus(status Status, at time.Time) {
	r.status = status
	r.statusChangedAt = at
	if status == StatusConfirmed {
		r.confirmed = true
	}
}

func (r *Reservation) SetPendingReplacement(id string) {
	r.pendingReplacement = id
}

func (r *Reservation) SetReplaces(id string) {
	r.replaces = id
}

// Clone returns an independent copy sharing no mutable state.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// WithID returns a copy of the reservation carrying a different id.
func (r *Reservation) WithID(id string) *Reservation {
	c := r.Clone()
	c.id = id
	return c
}

// Rescheduled returns a copy covering a new interval and service. Identity and status are kept.
func (r *Reservation) Rescheduled(serviceName string, start, end time.Time) *Reservation {
	c := r.Clone()
	c.serviceName = serviceName
	c.startTime = start
	c.endTime = end
	return c
}

// SameBooking reports whether both reservations hold the same id and interval.
func (r *Reservation) SameBooking(o *Reservation) bool {
	return r.id == o.id && r.startTime.Equal(o.startTime) && r.endTime.Equal(o.endTime)
}

// ReservationView is the serialized form of a Reservation.
type ReservationView struct {
	ID                 string    `json:"id" bson:"_id"`
	User               string    `json:"user" bson:"user"`
	ServiceName        string    `json:"service_name" bson:"service_name"`
	StartTime          time.Time `json:"start_time" bson:"start_time"`
	EndTime            time.Time `json:"end_time" bson:"end_time"`
	CreatedAt          time.Time `json:"created_at" bson:"created_at"`
	Status             Status    `json:"status" bson:"status"`
	StatusChangedAt    time.Time `json:"status_changed_at" bson:"status_changed_at"`
	Confirmed          bool      `json:"is_confirmed" bson:"is_confirmed"`
	PendingReplacement string    `json:"pending_replacement,omitempty" bson:"pending_replacement,omitempty"`
	Replaces           string    `json:"replaces,omitempty" bson:"replaces,omitempty"`
}

func (r *Reservation) View() ReservationView {
	return ReservationView{
		ID:                 r.id,
		User:               r.user,
		ServiceName:        r.serviceName,
		StartTime:          r.startTime,
		EndTime:            r.endTime,
		CreatedAt:          r.createdAt,
		Status:             r.status,
		StatusChangedAt:    r.statusChangedAt,
		Confirmed:          r.confirmed,
		PendingReplacement: r.pendingReplacement,
		Replaces:           r.replaces,
	}
}

func (r *Reservation) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}
