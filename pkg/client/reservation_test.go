package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agenda/internal/calendar"
	"agenda/internal/catalog"
	"agenda/internal/reservations/handler"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/service"
	"agenda/internal/reservations/validator"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/julienschmidt/httprouter"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 10, 20, hour, min, 0, 0, time.UTC)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	policy := model.Policy{
		SlotDurationMin:           15,
		GridSpanMin:               30,
		MinAdvanceBookingMin:      60,
		MinAdvanceCancellationMin: 120,
		OpeningHours: []model.OpeningWindow{
			{Start: model.TimeOfDay(9 * time.Hour), End: model.TimeOfDay(13 * time.Hour)},
		},
		Location: time.UTC,
	}
	cal, err := calendar.FromOpeningHours(calendar.BuildOptions{
		SlotDuration: policy.SlotDuration(),
		OpeningHours: policy.OpeningHours,
		From:         at(0, 0),
		Days:         1,
	})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.NewStatic([]model.Service{
		{Name: "haircut", DurationMin: 30, Price: 15},
		{Name: "beard", DurationMin: 15, Price: 8},
	})
	if err != nil {
		t.Fatal(err)
	}

	log := logger.Discard()
	mgr, err := service.NewManager(cal, repository.NewReservationIndex(), cat,
		validator.NewReservationValidator(log, policy.SlotDurationMin), policy, log,
		service.WithClock(func() time.Time { return at(8, 0) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	router := httprouter.New()
	handler.NewReservationHandler(mgr, []string{"admin"}, time.UTC, log).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an *APIError, got %v", err)
	}
	return apiErr.Code
}

func TestReservationClient_Lifecycle(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	alice := NewReservationClient(srv.URL, "alice")

	created, err := alice.Reserve(ctx, ReserveRequest{ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if created.User != "alice" || !created.StartTime.Equal(at(11, 0)) || !created.EndTime.Equal(at(11, 30)) {
		t.Errorf("created = %+v", created)
	}

	got, err := alice.Get(ctx, created.ID)
	if err != nil || got.ID != created.ID {
		t.Fatalf("Get() = %+v, %v", got, err)
	}

	free, err := alice.IsAvailable(ctx, "haircut", at(11, 0), 0)
	if err != nil || free {
		t.Errorf("IsAvailable(11:00) = %v, %v", free, err)
	}

	result, err := alice.Update(ctx, created.ID, UpdateRequest{StartTime: &[]time.Time{at(11, 30)}[0]})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !result.Old.StartTime.Equal(at(11, 0)) || !result.New.StartTime.Equal(at(11, 30)) {
		t.Errorf("update result = %+v", result)
	}

	mine, err := alice.Mine(ctx)
	if err != nil || len(mine) != 1 {
		t.Fatalf("Mine() = %v, %v", mine, err)
	}

	if _, err := alice.Cancel(ctx, mine[0].ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if mine, _ := alice.Mine(ctx); len(mine) != 0 {
		t.Errorf("reservations left after cancel: %v", mine)
	}
}

func TestReservationClient_Errors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	alice := NewReservationClient(srv.URL, "alice")
	bob := NewReservationClient(srv.URL, "bob")

	created, err := alice.Reserve(ctx, ReserveRequest{ServiceName: "beard", StartTime: at(10, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	_, err = bob.Reserve(ctx, ReserveRequest{ServiceName: "beard", StartTime: at(10, 0)})
	if code := apiCode(t, err); code != apperrors.CodeAlreadyBooked {
		t.Errorf("double booking code = %s", code)
	}

	_, err = bob.Get(ctx, created.ID)
	if code := apiCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("foreign Get code = %s", code)
	}

	_, err = bob.CancelAt(ctx, CancelRequest{StartTime: &[]time.Time{at(10, 0)}[0]})
	if code := apiCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("foreign CancelAt code = %s", code)
	}

	_, err = alice.Reserve(ctx, ReserveRequest{ServiceName: "beard", StartTime: at(10, 0), Overrides: Overrides{AllowPast: true}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("override by a regular user = %v", err)
	}

	anonymous := NewReservationClient(srv.URL, "")
	_, err = anonymous.Mine(ctx)
	if code := apiCode(t, err); code != apperrors.CodeUnauthorized {
		t.Errorf("anonymous code = %s", code)
	}
}

func TestReservationClient_Catalog(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := NewReservationClient(srv.URL, "alice")

	services, err := c.Services(ctx)
	if err != nil || len(services) != 2 {
		t.Fatalf("Services() = %v, %v", services, err)
	}

	a, err := c.Availability(ctx, "haircut", at(9, 0), at(10, 0))
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	want := []time.Time{at(9, 0), at(9, 30), at(10, 0)}
	if len(a.Default) != len(want) {
		t.Fatalf("defaults = %v, want %v", a.Default, want)
	}
	for i := range want {
		if !a.Default[i].Equal(want[i]) {
			t.Errorf("defaults[%d] = %s, want %s", i, a.Default[i], want[i])
		}
	}
}
