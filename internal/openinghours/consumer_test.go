package openinghours

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/catalog"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/service"
	"agenda/internal/reservations/validator"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/kafka"
	"agenda/pkg/logger"
	"agenda/pkg/model"
)

type mockCalendar struct {
	addFunc    func(ctx context.Context, start, end time.Time) error
	removeFunc func(ctx context.Context, start, end time.Time) error
	extendFunc func(ctx context.Context, from time.Time, days int) error
}

func (m *mockCalendar) AddOpeningWindow(ctx context.Context, start, end time.Time) error {
	if m.addFunc != nil {
		return m.addFunc(ctx, start, end)
	}
	return nil
}

func (m *mockCalendar) RemoveOpeningWindow(ctx context.Context, start, end time.Time) error {
	if m.removeFunc != nil {
		return m.removeFunc(ctx, start, end)
	}
	return nil
}

func (m *mockCalendar) ExtendOpeningHours(ctx context.Context, from time.Time, days int) error {
	if m.extendFunc != nil {
		return m.extendFunc(ctx, from, days)
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func TestHandle_AppliesChanges(t *testing.T) {
	start := time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var calls []string
	cal := &mockCalendar{
		addFunc: func(ctx context.Context, s, e time.Time) error {
			if !s.Equal(start) || !e.Equal(end) {
				t.Errorf("add got %s-%s", s, e)
			}
			calls = append(calls, "add")
			return nil
		},
		removeFunc: func(ctx context.Context, s, e time.Time) error {
			calls = append(calls, "remove")
			return nil
		},
		extendFunc: func(ctx context.Context, from time.Time, days int) error {
			if days != 7 {
				t.Errorf("extend got %d days", days)
			}
			calls = append(calls, "extend")
			return nil
		},
	}
	h := NewHandler(cal, testLogger())
	ctx := context.Background()

	for _, c := range []Change{
		{Action: ActionAdd, Start: start, End: end},
		{Action: ActionRemove, Start: start, End: end},
		{Action: ActionExtend, From: start, Days: 7},
	} {
		if err := h.Handle(ctx, NewMessage(c, "test")); err != nil {
			t.Fatalf("Handle(%s) error = %v", c.Action, err)
		}
	}
	if len(calls) != 3 || calls[0] != "add" || calls[1] != "remove" || calls[2] != "extend" {
		t.Errorf("calls = %v", calls)
	}
}

func TestHandle_PermanentFailures(t *testing.T) {
	start := time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)
	cal := &mockCalendar{
		addFunc: func(ctx context.Context, s, e time.Time) error {
			return apperrors.InvalidInput("misaligned")
		},
	}
	h := NewHandler(cal, testLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{"garbage payload", kafka.NewMessage().WithKey("k").WithHeader(kafka.HeaderEventType, EventType).Build()},
		{"unknown action", NewMessage(Change{Action: "rename", Start: start, End: start.Add(time.Hour)}, "test")},
		{"inverted window", NewMessage(Change{Action: ActionRemove, Start: start, End: start.Add(-time.Hour)}, "test")},
		{"extend without days", NewMessage(Change{Action: ActionExtend, From: start}, "test")},
		{"rejected by calendar", NewMessage(Change{Action: ActionAdd, Start: start, End: start.Add(time.Hour)}, "test")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(ctx, tt.msg)
			if !kafka.IsPermanent(err) {
				t.Errorf("expected a permanent error, got %v", err)
			}
		})
	}
}

func TestHandle_TransientFailureIsRetried(t *testing.T) {
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	cal := &mockCalendar{
		removeFunc: func(ctx context.Context, s, e time.Time) error {
			return apperrors.Wrap(calendar.ErrSlotBusy, apperrors.CodeConflict, "The opening window is being booked, try again", http.StatusConflict)
		},
	}
	h := NewHandler(cal, testLogger())

	err := h.Handle(context.Background(), NewMessage(Change{Action: ActionRemove, Start: start, End: start.Add(time.Hour)}, "test"))
	if err == nil || kafka.IsPermanent(err) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
	if !kafka.ShouldRetry(err, 0, 3) {
		t.Error("ShouldRetry() = false for a transient calendar conflict")
	}
}

func TestHandle_SkipsOtherEventTypes(t *testing.T) {
	called := false
	cal := &mockCalendar{
		addFunc: func(ctx context.Context, s, e time.Time) error {
			called = true
			return nil
		},
	}
	h := NewHandler(cal, testLogger())
	msg := kafka.NewMessage().WithKey("k").WithValue(map[string]string{"action": "add"}).WithEventType("reservation.created").Build()

	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if called {
		t.Error("a message of another type reached the calendar")
	}
	if !errors.Is(Change{Action: "x"}.Validate(), errInvalidChange) {
		t.Error("Validate() does not wrap errInvalidChange")
	}
}

func newManager(t *testing.T) (*service.Manager, *calendar.Calendar) {
	t.Helper()
	policy := model.Policy{
		SlotDurationMin:      15,
		GridSpanMin:          30,
		MinAdvanceBookingMin: 60,
		OpeningHours: []model.OpeningWindow{
			{Start: model.TimeOfDay(9 * time.Hour), End: model.TimeOfDay(13 * time.Hour)},
		},
		Location: time.UTC,
	}
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	cal, err := calendar.FromOpeningHours(calendar.BuildOptions{
		SlotDuration: policy.SlotDuration(),
		OpeningHours: policy.OpeningHours,
		From:         day,
		Days:         2,
	})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.NewStatic([]model.Service{{Name: "haircut", DurationMin: 30}})
	if err != nil {
		t.Fatal(err)
	}
	log := testLogger()
	mgr, err := service.NewManager(cal, repository.NewReservationIndex(), cat,
		validator.NewReservationValidator(log, policy.SlotDurationMin), policy, log,
		service.WithClock(func() time.Time { return day.Add(8 * time.Hour) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return mgr, cal
}

func TestHandle_CalendarConflictsAreNotRetried(t *testing.T) {
	mgr, cal := newManager(t)
	h := NewHandler(mgr, testLogger())
	ctx := context.Background()

	booked := time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC)
	if _, err := mgr.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: booked}); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	tests := []struct {
		name   string
		change Change
	}{
		{"remove over a reservation", Change{Action: ActionRemove, Start: booked.Add(-2 * time.Hour), End: booked.Add(2 * time.Hour)}},
		{"add over an open window", Change{Action: ActionAdd, Start: booked, End: booked.Add(time.Hour)}},
		{"extend over existing days", Change{Action: ActionExtend, From: booked.AddDate(0, 0, -1), Days: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(ctx, NewMessage(tt.change, "test"))
			if !kafka.IsPermanent(err) {
				t.Fatalf("expected a permanent error, got %v", err)
			}
			if kafka.ShouldRetry(err, 0, 3) {
				t.Error("ShouldRetry() = true for a change that can never apply")
			}
		})
	}
	if cal.Len() != 2 {
		t.Errorf("segments = %d after rejected changes, want 2", cal.Len())
	}
}

func TestHandle_BusySlotsAreRetried(t *testing.T) {
	mgr, cal := newManager(t)
	h := NewHandler(mgr, testLogger())

	start := time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)
	slots, err := cal.SlotsWithin(start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	guard := calendar.LockSlots(slots)
	defer guard.Unlock()

	err = h.Handle(context.Background(), NewMessage(Change{Action: ActionRemove, Start: start, End: start.Add(time.Hour)}, "test"))
	if err == nil || kafka.IsPermanent(err) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
	if !errors.Is(err, calendar.ErrSlotBusy) {
		t.Errorf("error = %v, want ErrSlotBusy in the chain", err)
	}
}
