package service

import (
	"context"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/reservations/events"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

type reservePlan struct {
	service string
	start   time.Time
	end     time.Time
}

// planReserve runs every check that needs no lock and returns the interval to book.
func (m *Manager) planReserve(ctx context.Context, req *model.ReservationRequest) (*reservePlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if err := m.validator.Validate(req); err != nil {
		return nil, m.validationError("Reservation", err)
	}

	svc, err := m.service(ctx, req.ServiceName)
	if err != nil {
		return nil, err
	}
	start := m.normalize(req.StartTime)
	if err := m.checkStart(start, req.Overrides); err != nil {
		return nil, err
	}

	minutes := svc.DurationMin
	if req.DurationMin != nil {
		minutes = *req.DurationMin
	}
	return &reservePlan{
		service: svc.Name,
		start:   start,
		end:     start.Add(durationOf(minutes)),
	}, nil
}

// Reserve books [start, start+duration) for the user.
func (m *Manager) Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
	r, err := m.reserve(ctx, req, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TypeCreated, r, nil)
	return r, nil
}

func (m *Manager) reserve(ctx context.Context, req *model.ReservationRequest, status model.Status) (*model.Reservation, error) {
	plan, err := m.planReserve(ctx, req)
	if err != nil {
		m.log.Warn("Reservation rejected",
			"user", req.User,
			"service", req.ServiceName,
			"start_time", req.StartTime,
			"error", err,
		)
		return nil, err
	}

	slots, err := m.cal.SlotsWithin(plan.start, plan.end)
	if err != nil {
		return nil, translate(err)
	}

	guard := calendar.LockSlots(slots)
	defer guard.Unlock()

	if err := m.cal.Reserve(slots); err != nil {
		m.log.Warn("Reservation conflict",
			"user", req.User,
			"start_time", plan.start,
			"error", err,
		)
		return nil, translate(err)
	}

	r := model.NewReservation(m.newID(), req.User, plan.service, plan.start, plan.end, m.now(), status)
	if err := m.index.Insert(r); err != nil {
		m.cal.Free(slots)
		m.log.Error("Failed to index reservation, slots released",
			"id", r.ID(),
			"start_time", plan.start,
			"error", err,
		)
		return nil, translate(err)
	}

	m.log.Info("Reservation created",
		"id", r.ID(),
		"user", r.User(),
		"service", r.ServiceName(),
		"start_time", r.StartTime(),
		"end_time", r.EndTime(),
		"status", r.Status(),
	)
	return r, nil
}

// CanReserve runs the Reserve checks without booking. Unless AnyAlignment is set, the start
// must be one the availability search would offer: on the grid, or right after a booking.
func (m *Manager) CanReserve(ctx context.Context, req *model.ReservationRequest) error {
	plan, err := m.planReserve(ctx, req)
	if err != nil {
		return err
	}
	grid := m.policy.GridSpan()
	if req.AnyAlignment {
		grid = m.policy.SlotDuration()
	}
	kind, err := m.cal.ClassifyWindow(plan.start, plan.end.Sub(plan.start), grid, nil)
	if err != nil {
		return translate(err)
	}
	if kind == calendar.KindNone {
		return apperrors.AlreadyBooked("The requested time is not offered")
	}
	return nil
}
