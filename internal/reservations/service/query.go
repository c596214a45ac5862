package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/internal/calendar"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

// IsAvailable reports whether the whole interval lies in one opening window with no booked
// slot. The duration comes from the service when not given.
func (m *Manager) IsAvailable(ctx context.Context, serviceName string, start time.Time, durationMin *int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, contextError(err)
	}
	var minutes int
	if durationMin != nil {
		if *durationMin <= 0 {
			return false, apperrors.InvalidInput("Duration must be positive")
		}
		minutes = *durationMin
	} else {
		svc, err := m.service(ctx, serviceName)
		if err != nil {
			return false, err
		}
		minutes = svc.DurationMin
	}

	start = m.normalize(start)
	if !m.cal.Aligned(start) {
		return false, apperrors.InvalidInput(fmt.Sprintf("Start time %s is not aligned to %d-minute slots", start.Format("15:04"), m.policy.SlotDurationMin))
	}
	ok, err := m.cal.IsAvailable(start, start.Add(durationOf(minutes)))
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// AvailableDatetimes lists the default and special window starts in [min, max]. Unless past
// slots are allowed the search begins no earlier than now, rounded up to a slot, plus the
// minimum advance booking time.
func (m *Manager) AvailableDatetimes(ctx context.Context, q *model.AvailabilityQuery) (*model.Availability, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if err := m.validator.ValidateQuery(q); err != nil {
		return nil, m.validationError("Availability query", err)
	}
	svc, err := m.service(ctx, q.ServiceName)
	if err != nil {
		return nil, err
	}
	minutes := svc.DurationMin
	if q.DurationMin != nil {
		minutes = *q.DurationMin
	}

	minStart := m.normalize(q.MinStartTime)
	maxStart := minStart
	if q.MaxStartTime != nil {
		maxStart = m.normalize(*q.MaxStartTime)
	}

	if !q.AllowPast {
		earliest := m.cal.CeilToSlot(m.currentTime()).Add(m.policy.MinAdvanceBooking())
		if maxStart.Before(earliest) {
			return nil, apperrors.PastTimeframe("Cannot look for availability on past timeframes")
		}
		if minStart.Before(earliest) {
			m.log.Debug("Availability search clamped to future slots",
				"requested", minStart,
				"earliest", earliest,
			)
			minStart = earliest
		}
	}

	windows, err := m.cal.AvailableWindows(minStart, maxStart, durationOf(minutes), m.policy.GridSpan())
	if err != nil {
		return nil, translate(err)
	}
	defaults, specials := calendar.Starts(windows)
	return &model.Availability{Default: defaults, Special: specials}, nil
}

// Get returns one of the user's reservations.
func (m *Manager) Get(ctx context.Context, id, user string) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	return m.find(user, id, nil, "")
}

func (m *Manager) UserReservations(ctx context.Context, user string) ([]*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	return m.index.FindByUser(user), nil
}

func (m *Manager) DailyReservations(ctx context.Context, day time.Time) ([]*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	return m.index.FindByDay(day.In(m.policy.Loc())), nil
}

// AllReservations returns every reservation ordered by start time.
func (m *Manager) AllReservations(ctx context.Context) ([]*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	return m.index.FindAll(), nil
}

func (m *Manager) Services(ctx context.Context) ([]model.Service, error) {
	services, err := m.catalog.List(ctx)
	if err != nil {
		if ctxErr := contextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Internal("Failed to list services", err)
	}
	return services, nil
}

func (m *Manager) DefaultOpeningHours() []model.OpeningWindow {
	return append([]model.OpeningWindow(nil), m.policy.OpeningHours...)
}

// DailyOpeningHours returns the calendar's opening windows on day, clipped to it.
func (m *Manager) DailyOpeningHours(ctx context.Context, day time.Time) ([]model.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	return m.cal.OpeningHours(day.In(m.policy.Loc())), nil
}

// AddOpeningWindow opens [start, end) for booking.
func (m *Manager) AddOpeningWindow(ctx context.Context, start, end time.Time) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	start, end = m.normalize(start), m.normalize(end)
	if _, err := m.cal.AddSegment(start, end); err != nil {
		m.log.Warn("Failed to add opening window", "start", start, "end", end, "error", err)
		return translate(err)
	}
	m.log.Info("Opening window added", "start", start, "end", end)
	return nil
}

// RemoveOpeningWindow closes [start, end). It fails when a reservation falls inside.
func (m *Manager) RemoveOpeningWindow(ctx context.Context, start, end time.Time) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	start, end = m.normalize(start), m.normalize(end)
	if err := m.cal.RemoveSegment(start, end, true); err != nil {
		m.log.Warn("Failed to remove opening window", "start", start, "end", end, "error", err)
		return translate(err)
	}
	m.log.Info("Opening window removed", "start", start, "end", end)
	return nil
}

// JoinCalendar merges another calendar's opening windows into the managed one.
func (m *Manager) JoinCalendar(other *calendar.Calendar) error {
	if err := m.cal.Join(other); err != nil {
		if errors.Is(err, calendar.ErrSlotDurationMismatch) {
			return apperrors.InvalidInput("Calendar slot duration does not match")
		}
		return translate(err)
	}
	m.log.Info("Calendar joined", "segments", m.cal.Len())
	return nil
}

// ExtendOpeningHours adds the default opening hours for days days starting at from. Slots
// starting before now plus the minimum advance booking time are left out.
func (m *Manager) ExtendOpeningHours(ctx context.Context, from time.Time, days int) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	notBefore := m.currentTime().Add(m.policy.MinAdvanceBooking())
	if err := m.cal.AddOpeningHours(m.policy.OpeningHours, from.In(m.policy.Loc()), days, notBefore); err != nil {
		return translate(err)
	}
	return nil
}
