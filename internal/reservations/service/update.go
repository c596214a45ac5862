package service

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/reservations/events"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

type updatePlan struct {
	old     *model.Reservation
	service string
	start   time.Time
	end     time.Time
}

func (p *updatePlan) moved() bool {
	return !p.start.Equal(p.old.StartTime())
}

func (p *updatePlan) duration() time.Duration {
	return p.end.Sub(p.start)
}

// planUpdate resolves the target reservation, fills omitted fields from it and checks the
// update rules: inside the cancellation window only the length or service may change, outside
// it the new start is checked like a fresh booking.
func (m *Manager) planUpdate(ctx context.Context, upd *model.ReservationUpdate) (*updatePlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if err := m.validator.ValidateUpdate(upd); err != nil {
		return nil, m.validationError("Update", err)
	}
	if upd.IsEmpty() {
		return nil, apperrors.InvalidInput("Nothing to update")
	}
	if upd.StartTime != nil && !m.cal.Aligned(m.normalize(*upd.StartTime)) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Start time is not aligned to %d-minute slots", m.policy.SlotDurationMin))
	}
	if upd.ServiceName != "" {
		if _, err := m.service(ctx, upd.ServiceName); err != nil {
			return nil, err
		}
	}

	old, err := m.find(upd.User, upd.ID, upd.OldStartTime, "")
	if err != nil {
		return nil, err
	}

	plan := &updatePlan{old: old, service: old.ServiceName(), start: old.StartTime()}
	if upd.ServiceName != "" {
		plan.service = upd.ServiceName
	}
	if upd.StartTime != nil {
		plan.start = m.normalize(*upd.StartTime)
	}
	svc, err := m.service(ctx, plan.service)
	if err != nil {
		return nil, err
	}
	switch {
	case upd.DurationMin != nil:
		plan.end = plan.start.Add(durationOf(*upd.DurationMin))
	case plan.service != old.ServiceName():
		plan.end = plan.start.Add(durationOf(svc.DurationMin))
	default:
		plan.end = plan.start.Add(old.Duration())
	}

	if !plan.moved() && plan.end.Equal(old.EndTime()) && plan.service == old.ServiceName() {
		return nil, apperrors.InvalidInput("The update leaves the reservation unchanged")
	}

	now := m.currentTime()
	if !upd.Overrides.AllowPast && old.StartTime().Before(now) {
		return nil, apperrors.PastTimeframe("Cannot update a reservation on a past timeframe")
	}
	if !upd.Overrides.SkipsAdvanceWindow() && m.insideCancelWindow(old, now) {
		if plan.moved() {
			return nil, apperrors.PolicyViolation(fmt.Sprintf("The start time cannot change less than %d minutes before the reservation", m.policy.MinAdvanceCancellationMin))
		}
		return plan, nil
	}
	if plan.moved() {
		if err := m.checkStart(plan.start, upd.Overrides); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Update moves or resizes a reservation. Only the slots in the symmetric difference of the
// old and new ranges change state; shared slots stay booked throughout. Any failure after the
// locks are taken restores the calendar and the index before returning.
func (m *Manager) Update(ctx context.Context, upd *model.ReservationUpdate) (*UpdateResult, error) {
	plan, err := m.planUpdate(ctx, upd)
	if err != nil {
		m.log.Warn("Update rejected",
			"user", upd.User,
			"id", upd.ID,
			"error", err,
		)
		return nil, err
	}

	updated, err := m.applyUpdate(plan)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TypeUpdated, updated, plan.old)
	return &UpdateResult{Old: plan.old, New: updated}, nil
}

func (m *Manager) applyUpdate(plan *updatePlan) (*model.Reservation, error) {
	old := plan.old
	oldSlots := m.cal.Slots(old.StartTime(), old.EndTime(), false)
	newSlots, err := m.cal.SlotsWithin(plan.start, plan.end)
	if err != nil {
		return nil, translate(err)
	}

	guard := calendar.LockSlots(oldSlots, newSlots)
	defer guard.Unlock()

	if err := m.verify(old); err != nil {
		return nil, err
	}

	toFree, toBook := calendar.SymmetricDifference(oldSlots, newSlots)
	m.cal.Free(toFree)
	if err := m.cal.Reserve(toBook); err != nil {
		m.cal.Restore(toFree)
		m.log.Warn("Update conflict, reservation restored",
			"id", old.ID(),
			"start_time", plan.start,
			"error", err,
		)
		return nil, translate(err)
	}

	updated := old.Rescheduled(plan.service, plan.start, plan.end)
	if err := m.index.Replace(old.ID(), updated); err != nil {
		m.cal.Free(toBook)
		m.cal.Restore(toFree)
		m.log.Error("Failed to re-index reservation, update rolled back",
			"id", old.ID(),
			"error", err,
		)
		return nil, translate(err)
	}

	m.log.Info("Reservation updated",
		"id", updated.ID(),
		"user", updated.User(),
		"service", updated.ServiceName(),
		"start_time", updated.StartTime(),
		"end_time", updated.EndTime(),
		"previous_start_time", old.StartTime(),
	)
	return updated, nil
}

// CanUpdate runs the Update checks without touching shared state. The old reservation's slots
// are treated as already free.
func (m *Manager) CanUpdate(ctx context.Context, upd *model.ReservationUpdate) error {
	plan, err := m.planUpdate(ctx, upd)
	if err != nil {
		return err
	}
	return m.checkUpdatePlan(plan, upd)
}

// checkUpdatePlan classifies the planned window as if the old reservation were already gone.
func (m *Manager) checkUpdatePlan(plan *updatePlan, upd *model.ReservationUpdate) error {
	released := m.cal.Slots(plan.old.StartTime(), plan.old.EndTime(), false)

	grid := m.policy.GridSpan()
	if upd.AnyAlignment || !plan.moved() {
		grid = m.policy.SlotDuration()
	}
	kind, err := m.cal.ClassifyWindow(plan.start, plan.duration(), grid, released)
	if err != nil {
		return translate(err)
	}
	if kind == calendar.KindNone {
		return apperrors.AlreadyBooked("The requested time is not offered")
	}
	return nil
}
