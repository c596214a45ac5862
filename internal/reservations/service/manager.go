package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/catalog"
	reservationserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/events"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/validator"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/google/uuid"
)

// ReservationService is the call contract of the scheduling engine.
type ReservationService interface {
	Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error)
	Cancel(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error)
	Update(ctx context.Context, upd *model.ReservationUpdate) (*UpdateResult, error)

	IsAvailable(ctx context.Context, serviceName string, start time.Time, durationMin *int) (bool, error)
	AvailableDatetimes(ctx context.Context, q *model.AvailabilityQuery) (*model.Availability, error)

	CanReserve(ctx context.Context, req *model.ReservationRequest) error
	CanCancel(ctx context.Context, req *model.CancelRequest) error
	CanUpdate(ctx context.Context, upd *model.ReservationUpdate) error

	Get(ctx context.Context, id, user string) (*model.Reservation, error)
	UserReservations(ctx context.Context, user string) ([]*model.Reservation, error)
	DailyReservations(ctx context.Context, day time.Time) ([]*model.Reservation, error)
	AllReservations(ctx context.Context) ([]*model.Reservation, error)
	Services(ctx context.Context) ([]model.Service, error)
	DefaultOpeningHours() []model.OpeningWindow
	DailyOpeningHours(ctx context.Context, day time.Time) ([]model.Interval, error)

	AddOpeningWindow(ctx context.Context, start, end time.Time) error
	RemoveOpeningWindow(ctx context.Context, start, end time.Time) error
}

// UpdateResult pairs the reservation before and after an update.
type UpdateResult struct {
	Old *model.Reservation `json:"old"`
	New *model.Reservation `json:"new"`
}

// Manager coordinates policy checks, the calendar and the reservation index. The calendar owns
// slot state and the index owns reservations; every mutation of both happens while the
// affected slots are locked.
type Manager struct {
	cal       *calendar.Calendar
	index     repository.ReservationRepository
	catalog   catalog.Catalog
	validator *validator.ReservationValidator
	publisher events.Publisher
	policy    model.Policy
	log       *logger.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithIDGenerator replaces the uuid generator for reservation ids.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

func NewManager(
	cal *calendar.Calendar,
	index repository.ReservationRepository,
	cat catalog.Catalog,
	v *validator.ReservationValidator,
	policy model.Policy,
	log *logger.Logger,
	opts ...Option,
) (*Manager, error) {
	if cal.SlotDuration() != policy.SlotDuration() {
		return nil, fmt.Errorf("calendar slot duration %s does not match policy slot duration %s", cal.SlotDuration(), policy.SlotDuration())
	}
	if policy.GridSpan() <= 0 || policy.GridSpan()%policy.SlotDuration() != 0 {
		return nil, fmt.Errorf("grid span %s is not a multiple of the slot duration %s", policy.GridSpan(), policy.SlotDuration())
	}
	m := &Manager{
		cal:       cal,
		index:     index,
		catalog:   cat,
		validator: v,
		publisher: events.Noop{},
		policy:    policy,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Calendar() *calendar.Calendar {
	return m.cal
}

func (m *Manager) Policy() model.Policy {
	return m.policy
}

// normalize moves t into the business time zone and drops seconds.
func (m *Manager) normalize(t time.Time) time.Time {
	return t.In(m.policy.Loc()).Truncate(time.Minute)
}

func (m *Manager) currentTime() time.Time {
	return m.normalize(m.now())
}

// service resolves a catalog entry. Unknown and misconfigured services are policy violations.
func (m *Manager) service(ctx context.Context, name string) (model.Service, error) {
	svc, err := m.catalog.Get(ctx, name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownService) {
			return model.Service{}, apperrors.PolicyViolation(fmt.Sprintf("Unknown service %q", name))
		}
		if ctxErr := contextError(err); ctxErr != nil {
			return model.Service{}, ctxErr
		}
		return model.Service{}, apperrors.Internal("Failed to look up service", err)
	}
	if err := m.validator.ValidateService(&svc); err != nil {
		m.log.Error("Catalog holds an invalid service", "service", name, "error", err)
		return model.Service{}, apperrors.PolicyViolation(fmt.Sprintf("Service %q is misconfigured", name))
	}
	return svc, nil
}

// validationError reports malformed arguments as InvalidInput, one detail per field.
func (m *Manager) validationError(what string, err error) error {
	m.log.Warn(what+" validation failed", "error", err)
	details := make(map[string]any)
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		for _, fe := range fields {
			details[fe.Field] = fe.Message
		}
	} else {
		details["error"] = err.Error()
	}
	return apperrors.InvalidInput(what + " is malformed").WithDetails(details)
}

// checkStart applies the booking time rules to a new start time.
func (m *Manager) checkStart(start time.Time, o model.Overrides) error {
	if !m.cal.Aligned(start) {
		return apperrors.InvalidInput(fmt.Sprintf("Start time %s is not aligned to %d-minute slots", start.Format("15:04"), m.policy.SlotDurationMin))
	}
	now := m.currentTime()
	if !o.AllowPast && start.Before(now) {
		return apperrors.PastTimeframe("Cannot book on a past timeframe")
	}
	if !o.SkipsAdvanceWindow() && start.Before(now.Add(m.policy.MinAdvanceBooking())) {
		return apperrors.PolicyViolation(fmt.Sprintf("Reservations must be requested at least %d minutes in advance", m.policy.MinAdvanceBookingMin))
	}
	return nil
}

// checkCancel applies the cancellation rules to an existing reservation.
func (m *Manager) checkCancel(r *model.Reservation, o model.Overrides) error {
	now := m.currentTime()
	if !o.AllowPast && r.StartTime().Before(now) {
		return apperrors.PastTimeframe("Cannot cancel a reservation on a past timeframe")
	}
	if !o.SkipsAdvanceWindow() && m.insideCancelWindow(r, now) {
		return apperrors.PolicyViolation(fmt.Sprintf("Cancellations must be requested at least %d minutes in advance", m.policy.MinAdvanceCancellationMin))
	}
	return nil
}

func (m *Manager) insideCancelWindow(r *model.Reservation, now time.Time) bool {
	return !r.StartTime().Add(-m.policy.MinAdvanceCancellation()).After(now)
}

// find resolves a reservation by id, or by start time falling back to the reservation that
// contains the instant. It enforces ownership and, when given, the booked service.
func (m *Manager) find(user, id string, at *time.Time, serviceName string) (*model.Reservation, error) {
	var (
		r   *model.Reservation
		err error
	)
	if id == "" && at == nil {
		return nil, apperrors.InvalidInput("A reservation id or start time is required")
	}
	if id != "" {
		r, err = m.index.FindByID(id)
	} else {
		t := m.normalize(*at)
		r, err = m.index.FindByStart(t)
		if errors.Is(err, reservationserrors.ErrNotFound) {
			if r, err = m.index.FindContaining(t); err == nil {
				m.log.Warn("Resolved reservation by inner time",
					"requested", t,
					"id", r.ID(),
					"start_time", r.StartTime(),
				)
			}
		}
	}
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return nil, m.notFound(id, at)
		}
		return nil, apperrors.Internal("Failed to look up reservation", err)
	}
	if r.User() != user {
		m.log.Warn("Reservation lookup by another user",
			"id", r.ID(),
			"user", user,
			"error", reservationserrors.ErrNotOwner,
		)
		return nil, m.notFound(id, at)
	}
	if serviceName != "" && r.ServiceName() != serviceName {
		return nil, apperrors.PolicyViolation(fmt.Sprintf("Reservation is for %q, not %q", r.ServiceName(), serviceName))
	}
	return r, nil
}

func (m *Manager) notFound(id string, at *time.Time) error {
	if id != "" {
		return apperrors.NotFoundWithID("Reservation", id)
	}
	return apperrors.NotFound("Reservation at the requested time")
}

// translate maps calendar and index failures to application errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, calendar.ErrAlreadyBooked):
		return apperrors.AlreadyBooked("The requested time is already booked")
	case errors.Is(err, calendar.ErrClosed):
		return apperrors.OutOfHours("The requested time is outside opening hours")
	case errors.Is(err, calendar.ErrMisaligned):
		return apperrors.InvalidInput("The requested time is not on a slot boundary")
	case errors.Is(err, calendar.ErrOverlap):
		return apperrors.Wrap(err, apperrors.CodeConflict, "The opening window overlaps existing opening hours", http.StatusConflict)
	case errors.Is(err, calendar.ErrHasBookings):
		return apperrors.Wrap(err, apperrors.CodeConflict, "The opening window holds reservations", http.StatusConflict)
	case errors.Is(err, calendar.ErrSlotBusy):
		return apperrors.Wrap(err, apperrors.CodeConflict, "The opening window is being booked, try again", http.StatusConflict)
	case errors.Is(err, calendar.ErrInvalidRange), errors.Is(err, calendar.ErrInvalidSlotDuration),
		errors.Is(err, calendar.ErrInvalidGrid), errors.Is(err, calendar.ErrOutOfRange):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, reservationserrors.ErrNotFound):
		return apperrors.NotFound("Reservation")
	case errors.Is(err, reservationserrors.ErrStartTaken):
		return apperrors.AlreadyBooked("Another reservation starts at the requested time")
	}
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Internal("Unexpected scheduling failure", err)
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("Request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "Request canceled", 499)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, typ events.Type, r *model.Reservation, previous *model.Reservation) {
	e := events.Event{Type: typ, Reservation: r.View(), At: m.now()}
	if previous != nil {
		v := previous.View()
		e.Previous = &v
	}
	if err := m.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		m.log.Error("Failed to publish reservation event",
			"type", typ,
			"id", r.ID(),
			"error", err,
		)
	}
}

func durationOf(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
