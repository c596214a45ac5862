package service

import (
	"context"
	"errors"

	"agenda/internal/calendar"
	reservationserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/events"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

// planCancel resolves the reservation a cancel request targets and checks the policy.
func (m *Manager) planCancel(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if err := m.validator.ValidateCancel(req); err != nil {
		return nil, m.validationError("Cancellation", err)
	}
	if req.ServiceName != "" {
		if _, err := m.service(ctx, req.ServiceName); err != nil {
			return nil, err
		}
	}
	if req.StartTime != nil && !m.cal.Aligned(m.normalize(*req.StartTime)) {
		return nil, apperrors.InvalidInput("Start time is not on a slot boundary")
	}

	r, err := m.find(req.User, req.ID, req.StartTime, req.ServiceName)
	if err != nil {
		return nil, err
	}
	if err := m.checkCancel(r, req.Overrides); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel frees the reservation's slots and removes it. The reservation is chosen by id, or
// by start time when no id is given.
func (m *Manager) Cancel(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error) {
	r, err := m.planCancel(ctx, req)
	if err != nil {
		m.log.Warn("Cancellation rejected",
			"user", req.User,
			"id", req.ID,
			"error", err,
		)
		return nil, err
	}
	removed, err := m.remove(r)
	if err != nil {
		return nil, err
	}
	removed.SetStatus(model.StatusDeleted, m.now())
	m.publish(ctx, events.TypeCancelled, removed, nil)
	return removed, nil
}

// remove frees the slots of r and drops it from the index. Slots already taken out of the
// calendar are skipped.
func (m *Manager) remove(r *model.Reservation) (*model.Reservation, error) {
	slots := m.cal.Slots(r.StartTime(), r.EndTime(), false)

	guard := calendar.LockSlots(slots)
	defer guard.Unlock()

	if err := m.verify(r); err != nil {
		return nil, err
	}

	m.cal.Free(slots)
	removed, err := m.index.Remove(r.ID())
	if err != nil {
		m.cal.Restore(slots)
		m.log.Error("Failed to remove reservation, slots restored",
			"id", r.ID(),
			"error", err,
		)
		return nil, translate(err)
	}

	m.log.Info("Reservation cancelled",
		"id", removed.ID(),
		"user", removed.User(),
		"service", removed.ServiceName(),
		"start_time", removed.StartTime(),
	)
	return removed, nil
}

// verify checks, under the slot locks, that r is still indexed unchanged.
func (m *Manager) verify(r *model.Reservation) error {
	current, err := m.index.FindByID(r.ID())
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Reservation", r.ID())
		}
		return translate(err)
	}
	if !current.SameBooking(r) {
		return apperrors.Conflict("Reservation changed concurrently")
	}
	return nil
}

// CanCancel runs the Cancel checks without cancelling.
func (m *Manager) CanCancel(ctx context.Context, req *model.CancelRequest) error {
	_, err := m.planCancel(ctx, req)
	return err
}
