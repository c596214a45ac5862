package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agenda/internal/reservations/service"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockReservationService struct {
	reserveFunc   func(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error)
	cancelFunc    func(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error)
	updateFunc    func(ctx context.Context, upd *model.ReservationUpdate) (*service.UpdateResult, error)
	canCancelFunc func(ctx context.Context, req *model.CancelRequest) error
	availableFunc func(ctx context.Context, q *model.AvailabilityQuery) (*model.Availability, error)
	allFunc       func(ctx context.Context) ([]*model.Reservation, error)
	addWindowFunc func(ctx context.Context, start, end time.Time) error
}

func (m *mockReservationService) Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockReservationService) Cancel(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockReservationService) Update(ctx context.Context, upd *model.ReservationUpdate) (*service.UpdateResult, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, upd)
	}
	return nil, nil
}

func (m *mockReservationService) IsAvailable(ctx context.Context, serviceName string, start time.Time, durationMin *int) (bool, error) {
	return true, nil
}

func (m *mockReservationService) AvailableDatetimes(ctx context.Context, q *model.AvailabilityQuery) (*model.Availability, error) {
	if m.availableFunc != nil {
		return m.availableFunc(ctx, q)
	}
	return &model.Availability{}, nil
}

func (m *mockReservationService) CanReserve(ctx context.Context, req *model.ReservationRequest) error {
	return nil
}

func (m *mockReservationService) CanCancel(ctx context.Context, req *model.CancelRequest) error {
	if m.canCancelFunc != nil {
		return m.canCancelFunc(ctx, req)
	}
	return nil
}

func (m *mockReservationService) CanUpdate(ctx context.Context, upd *model.ReservationUpdate) error {
	return nil
}

func (m *mockReservationService) Get(ctx context.Context, id, user string) (*model.Reservation, error) {
	return nil, apperrors.NotFoundWithID("Reservation", id)
}

func (m *mockReservationService) UserReservations(ctx context.Context, user string) ([]*model.Reservation, error) {
	return nil, nil
}

func (m *mockReservationService) DailyReservations(ctx context.Context, day time.Time) ([]*model.Reservation, error) {
	return nil, nil
}

func (m *mockReservationService) AllReservations(ctx context.Context) ([]*model.Reservation, error) {
	if m.allFunc != nil {
		return m.allFunc(ctx)
	}
	return nil, nil
}

func (m *mockReservationService) Services(ctx context.Context) ([]model.Service, error) {
	return []model.Service{{Name: "haircut", DurationMin: 30}}, nil
}

func (m *mockReservationService) DefaultOpeningHours() []model.OpeningWindow {
	return nil
}

func (m *mockReservationService) DailyOpeningHours(ctx context.Context, day time.Time) ([]model.Interval, error) {
	return nil, nil
}

func (m *mockReservationService) AddOpeningWindow(ctx context.Context, start, end time.Time) error {
	if m.addWindowFunc != nil {
		return m.addWindowFunc(ctx, start, end)
	}
	return nil
}

func (m *mockReservationService) RemoveOpeningWindow(ctx context.Context, start, end time.Time) error {
	return nil
}

type mockConfirmingService struct {
	mockReservationService
	confirmFunc func(ctx context.Context, id, user string) (*model.Reservation, error)
}

func (m *mockConfirmingService) Confirm(ctx context.Context, id, user string) (*model.Reservation, error) {
	return m.confirmFunc(ctx, id, user)
}

func (m *mockConfirmingService) Decline(ctx context.Context, id, user string) (*model.Reservation, error) {
	return nil, nil
}

func (m *mockConfirmingService) Proposal(ctx context.Context, id, user string) (*model.Reservation, error) {
	return nil, nil
}

func newTestRouter(svc service.ReservationService) *httprouter.Router {
	log := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	router := httprouter.New()
	NewReservationHandler(svc, []string{"admin"}, time.UTC, log).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, target, user, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperrors.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Code
}

func TestReserve_UsesHeaderIdentity(t *testing.T) {
	var received *model.ReservationRequest
	svc := &mockReservationService{
		reserveFunc: func(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
			received = req
			return model.NewReservation("r1", req.User, req.ServiceName, req.StartTime, req.StartTime.Add(30*time.Minute), time.Now(), model.StatusConfirmed), nil
		},
	}
	router := newTestRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/reservations", "alice",
		`{"user":"mallory","service_name":"haircut","start_time":"2026-10-20T11:00:00Z"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if received.User != "alice" {
		t.Errorf("user = %q, want the header identity", received.User)
	}
	var resp struct {
		Data model.ReservationView `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.ID != "r1" || resp.Data.Status != model.StatusConfirmed {
		t.Errorf("unexpected response %+v", resp.Data)
	}
}

func TestReserve_Errors(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing identity",
			body:       `{"service_name":"haircut","start_time":"2026-10-20T11:00:00Z"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   apperrors.CodeUnauthorized,
		},
		{
			name:       "malformed body",
			user:       "alice",
			body:       `{"service_name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeInvalidInput,
		},
		{
			name:       "override by regular user",
			user:       "alice",
			body:       `{"service_name":"haircut","start_time":"2026-10-20T11:00:00Z","allow_past":true}`,
			wantStatus: http.StatusForbidden,
			wantCode:   apperrors.CodeForbidden,
		},
		{
			name:       "already booked",
			user:       "alice",
			body:       `{"service_name":"haircut","start_time":"2026-10-20T11:00:00Z"}`,
			serviceErr: apperrors.AlreadyBooked("taken"),
			wantStatus: http.StatusConflict,
			wantCode:   apperrors.CodeAlreadyBooked,
		},
		{
			name:       "policy violation",
			user:       "alice",
			body:       `{"service_name":"haircut","start_time":"2026-10-20T11:00:00Z"}`,
			serviceErr: apperrors.PolicyViolation("too late"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apperrors.CodePolicyViolation,
		},
		{
			name:       "unexpected error",
			user:       "alice",
			body:       `{"service_name":"haircut","start_time":"2026-10-20T11:00:00Z"}`,
			serviceErr: errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockReservationService{
				reserveFunc: func(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
					return nil, tt.serviceErr
				},
			}
			w := do(newTestRouter(svc), http.MethodPost, "/api/v1/reservations", tt.user, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestReserve_AdminOverrides(t *testing.T) {
	var received *model.ReservationRequest
	svc := &mockReservationService{
		reserveFunc: func(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
			received = req
			return model.NewReservation("r1", req.User, req.ServiceName, req.StartTime, req.StartTime, time.Now(), model.StatusConfirmed), nil
		},
	}
	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/reservations", "admin",
		`{"service_name":"haircut","start_time":"2026-10-20T08:00:00Z","allow_past":true}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
	if !received.Overrides.AllowPast {
		t.Error("admin override was not passed to the service")
	}
}

func TestUpdate_PathIDWins(t *testing.T) {
	var received *model.ReservationUpdate
	svc := &mockReservationService{
		updateFunc: func(ctx context.Context, upd *model.ReservationUpdate) (*service.UpdateResult, error) {
			received = upd
			return &service.UpdateResult{}, nil
		},
	}
	w := do(newTestRouter(svc), http.MethodPatch, "/api/v1/reservations/id/r1", "alice",
		`{"id":"other","old_start_time":"2026-10-20T11:00:00Z","start_time":"2026-10-20T11:15:00Z"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if received.ID != "r1" || received.OldStartTime != nil {
		t.Errorf("update targets id=%q old_start=%v, want the path id only", received.ID, received.OldStartTime)
	}
	if received.StartTime == nil || !received.StartTime.Equal(time.Date(2026, 10, 20, 11, 15, 0, 0, time.UTC)) {
		t.Errorf("start_time not decoded: %v", received.StartTime)
	}
}

func TestCancel_ByIDAndByTime(t *testing.T) {
	var received []*model.CancelRequest
	svc := &mockReservationService{
		cancelFunc: func(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error) {
			received = append(received, req)
			return model.NewReservation("r1", req.User, "haircut", time.Now(), time.Now(), time.Now(), model.StatusDeleted), nil
		},
	}
	router := newTestRouter(svc)

	if w := do(router, http.MethodDelete, "/api/v1/reservations/id/r1", "alice", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := do(router, http.MethodPost, "/api/v1/reservations/cancel", "alice",
		`{"start_time":"2026-10-20T11:00:00Z","service_name":"haircut"}`); w.Code != http.StatusOK {
		t.Fatalf("POST cancel: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := do(router, http.MethodDelete, "/api/v1/reservations/id/r1?skip_advance_window=true", "alice", ""); w.Code != http.StatusForbidden {
		t.Fatalf("DELETE with override: expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	if len(received) != 2 {
		t.Fatalf("service called %d times, want 2", len(received))
	}
	if received[0].ID != "r1" || received[0].StartTime != nil {
		t.Errorf("cancel by id sent %+v", received[0])
	}
	if received[1].ID != "" || received[1].StartTime == nil || received[1].ServiceName != "haircut" {
		t.Errorf("cancel by time sent %+v", received[1])
	}
}

func TestCheckCancel(t *testing.T) {
	svc := &mockReservationService{
		canCancelFunc: func(ctx context.Context, req *model.CancelRequest) error {
			if req.ID == "late" {
				return apperrors.PolicyViolation("too late to cancel")
			}
			return nil
		},
	}
	router := newTestRouter(svc)

	if w := do(router, http.MethodPost, "/api/v1/checks/cancel", "alice", `{"id":"ok"}`); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	w := do(router, http.MethodPost, "/api/v1/checks/cancel", "alice", `{"id":"late"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}
}

func TestAvailability_QueryParsing(t *testing.T) {
	var received *model.AvailabilityQuery
	svc := &mockReservationService{
		availableFunc: func(ctx context.Context, q *model.AvailabilityQuery) (*model.Availability, error) {
			received = q
			return &model.Availability{Default: []time.Time{q.MinStartTime}}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name       string
		query      string
		user       string
		wantStatus int
	}{
		{"valid", "?service=haircut&min_start=2026-10-20T09:00:00Z&max_start=2026-10-20T12:00:00Z&duration_min=45", "", http.StatusOK},
		{"missing min_start", "?service=haircut", "", http.StatusBadRequest},
		{"bad time", "?service=haircut&min_start=tomorrow", "", http.StatusBadRequest},
		{"bad duration", "?service=haircut&min_start=2026-10-20T09:00:00Z&duration_min=long", "", http.StatusBadRequest},
		{"past needs admin", "?service=haircut&min_start=2026-10-20T09:00:00Z&allow_past=true", "alice", http.StatusForbidden},
		{"past for admin", "?service=haircut&min_start=2026-10-20T09:00:00Z&allow_past=true", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, "/api/v1/availability"+tt.query, tt.user, "")
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	do(router, http.MethodGet, "/api/v1/availability?service=haircut&min_start=2026-10-20T09:00:00Z&max_start=2026-10-20T12:00:00Z&duration_min=45", "", "")
	if received.ServiceName != "haircut" || received.MaxStartTime == nil || received.DurationMin == nil || *received.DurationMin != 45 {
		t.Errorf("unexpected query %+v", received)
	}
}

func TestAdminRoutes(t *testing.T) {
	var added bool
	svc := &mockReservationService{
		allFunc: func(ctx context.Context) ([]*model.Reservation, error) {
			return []*model.Reservation{model.NewReservation("r1", "bob", "haircut", time.Now(), time.Now(), time.Now(), model.StatusConfirmed)}, nil
		},
		addWindowFunc: func(ctx context.Context, start, end time.Time) error {
			added = true
			return nil
		},
	}
	router := newTestRouter(svc)

	if w := do(router, http.MethodGet, "/api/v1/admin/reservations", "alice", ""); w.Code != http.StatusForbidden {
		t.Errorf("non-admin listing: expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	w := do(router, http.MethodGet, "/api/v1/admin/reservations", "admin", "")
	if w.Code != http.StatusOK {
		t.Fatalf("admin listing: expected status %d, got %d", http.StatusOK, w.Code)
	}
	var list struct {
		TotalCount int `json:"total_count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || list.TotalCount != 1 {
		t.Errorf("total_count = %d, err = %v", list.TotalCount, err)
	}

	w = do(router, http.MethodPost, "/api/v1/admin/opening-windows", "admin",
		`{"start":"2026-10-20T13:00:00Z","end":"2026-10-20T14:00:00Z"}`)
	if w.Code != http.StatusNoContent || !added {
		t.Errorf("add window: status %d, added %v", w.Code, added)
	}
}

func TestConfirmRoutes(t *testing.T) {
	plain := newTestRouter(&mockReservationService{})
	if w := do(plain, http.MethodPost, "/api/v1/reservations/id/r1/confirm", "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("confirm without overlay: expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	svc := &mockConfirmingService{
		confirmFunc: func(ctx context.Context, id, user string) (*model.Reservation, error) {
			return nil, apperrors.ConfirmationExpired("too late")
		},
	}
	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/reservations/id/r1/confirm", "alice", "")
	if w.Code != http.StatusGone {
		t.Errorf("expected status %d, got %d", http.StatusGone, w.Code)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	w := do(newTestRouter(&mockReservationService{}), http.MethodGet, "/api/v1/reservations/id/missing", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if code := errorCode(t, w); code != apperrors.CodeNotFound {
		t.Errorf("code = %s, want %s", code, apperrors.CodeNotFound)
	}
}
