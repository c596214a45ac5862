package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"agenda/internal/reservations/service"
	apperrors "agenda/pkg/errors"
	httputil "agenda/pkg/http"
	"agenda/pkg/logger"
	"agenda/pkg/middleware"
	"agenda/pkg/model"
	"agenda/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

// HeaderUser carries the caller's identity, set by the gateway in front of the service.
const HeaderUser = middleware.HeaderUser

type overridesBody struct {
	AllowPast         bool `json:"allow_past,omitempty"`
	SkipAdvanceWindow bool `json:"skip_advance_window,omitempty"`
}

func (o overridesBody) toModel() model.Overrides {
	return model.Overrides{AllowPast: o.AllowPast, SkipAdvanceWindow: o.SkipAdvanceWindow}
}

func (o overridesBody) requested() bool {
	return o.AllowPast || o.SkipAdvanceWindow
}

type reserveBody struct {
	model.ReservationRequest
	overridesBody
}

type updateBody struct {
	model.ReservationUpdate
	overridesBody
}

type cancelBody struct {
	model.CancelRequest
	overridesBody
}

type windowBody struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type checkResult struct {
	OK bool `json:"ok"`
}

type ReservationHandler struct {
	service   service.ReservationService
	confirmer service.Confirmer
	admins    map[string]struct{}
	loc       *time.Location
	log       *logger.Logger
}

// NewReservationHandler exposes svc over HTTP. Confirmation routes are registered when svc
// also implements service.Confirmer.
func NewReservationHandler(svc service.ReservationService, admins []string, loc *time.Location, log *logger.Logger) *ReservationHandler {
	h := &ReservationHandler{
		service: svc,
		admins:  make(map[string]struct{}, len(admins)),
		loc:     loc,
		log:     log,
	}
	if c, ok := svc.(service.Confirmer); ok {
		h.confirmer = c
	}
	for _, a := range admins {
		h.admins[a] = struct{}{}
	}
	return h
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) isAdmin(user string) bool {
	_, ok := h.admins[user]
	return ok
}

// caller returns the authenticated user. Overrides are reserved to administrators.
func (h *ReservationHandler) caller(r *http.Request, overrides bool) (string, error) {
	user := sanitizer.SanitizeUserID(r.Header.Get(HeaderUser))
	if user == "" {
		return "", apperrors.Unauthorized("Missing " + HeaderUser + " header")
	}
	if overrides && !h.isAdmin(user) {
		h.log.Warn("Policy override refused", "user", user, "path", r.URL.Path)
		return "", apperrors.Forbidden("Policy overrides require an administrator")
	}
	return user, nil
}

func (h *ReservationHandler) admin(r *http.Request) (string, error) {
	user, err := h.caller(r, false)
	if err != nil {
		return "", err
	}
	if !h.isAdmin(user) {
		return "", apperrors.Forbidden("Administrator access required")
	}
	return user, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidInput("Invalid request body")
	}
	return nil
}

func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body reserveBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "Reserve", err)
		return
	}
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}
	req := body.ReservationRequest
	req.User = user
	req.ServiceName = sanitizer.SanitizeServiceName(req.ServiceName)
	req.Overrides = body.toModel()

	reservation, err := h.service.Reserve(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}
	if err := httputil.WriteCreated(w, reservation); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) CheckReserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body reserveBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "CheckReserve", err)
		return
	}
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, "CheckReserve", err)
		return
	}
	req := body.ReservationRequest
	req.User = user
	req.ServiceName = sanitizer.SanitizeServiceName(req.ServiceName)
	req.Overrides = body.toModel()

	if err := h.service.CanReserve(r.Context(), &req); err != nil {
		h.writeError(w, "CheckReserve", err)
		return
	}
	h.writeSuccess(w, "CheckReserve", checkResult{OK: true})
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := h.caller(r, false)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}
	reservation, err := h.service.Get(r.Context(), ps.ByName("id"), user)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}
	h.writeSuccess(w, "GetByID", reservation)
}

func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, err := h.caller(r, false)
	if err != nil {
		h.writeError(w, "Mine", err)
		return
	}
	reservations, err := h.service.UserReservations(r.Context(), user)
	if err != nil {
		h.writeError(w, "Mine", err)
		return
	}
	if err := httputil.WriteList(w, reservations, len(reservations)); err != nil {
		h.log.Error("failed to write list response", "handler", "Mine", "operation", "WriteList", "error", err)
	}
}

// Update changes the reservation named in the path.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body updateBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "Update", err)
		return
	}
	body.ID = ps.ByName("id")
	body.OldStartTime = nil
	h.update(w, r, "Update", &body)
}

// Reschedule changes the reservation found by old_start_time.
func (h *ReservationHandler) Reschedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body updateBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}
	body.ID = ""
	h.update(w, r, "Reschedule", &body)
}

func (h *ReservationHandler) update(w http.ResponseWriter, r *http.Request, handler string, body *updateBody) {
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	upd := body.ReservationUpdate
	upd.User = user
	upd.ServiceName = sanitizer.SanitizeServiceName(upd.ServiceName)
	upd.Overrides = body.toModel()

	result, err := h.service.Update(r.Context(), &upd)
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	h.writeSuccess(w, handler, result)
}

func (h *ReservationHandler) CheckUpdate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body updateBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "CheckUpdate", err)
		return
	}
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, "CheckUpdate", err)
		return
	}
	upd := body.ReservationUpdate
	upd.User = user
	upd.ServiceName = sanitizer.SanitizeServiceName(upd.ServiceName)
	upd.Overrides = body.toModel()

	if err := h.service.CanUpdate(r.Context(), &upd); err != nil {
		h.writeError(w, "CheckUpdate", err)
		return
	}
	h.writeSuccess(w, "CheckUpdate", checkResult{OK: true})
}

// Delete cancels the reservation named in the path.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	o := overridesBody{
		AllowPast:         httputil.QueryBool(r, "allow_past"),
		SkipAdvanceWindow: httputil.QueryBool(r, "skip_advance_window"),
	}
	user, err := h.caller(r, o.requested())
	if err != nil {
		h.writeError(w, "Delete", err)
		return
	}
	cancelled, err := h.service.Cancel(r.Context(), &model.CancelRequest{
		User:      user,
		ID:        ps.ByName("id"),
		Overrides: o.toModel(),
	})
	if err != nil {
		h.writeError(w, "Delete", err)
		return
	}
	h.writeSuccess(w, "Delete", cancelled)
}

// CancelByTime cancels the reservation found by start_time.
func (h *ReservationHandler) CancelByTime(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body cancelBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "CancelByTime", err)
		return
	}
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, "CancelByTime", err)
		return
	}
	req := body.CancelRequest
	req.User = user
	req.ServiceName = sanitizer.SanitizeServiceName(req.ServiceName)
	req.ID = ""
	req.Overrides = body.toModel()

	cancelled, err := h.service.Cancel(r.Context(), &req)
	if err != nil {
		h.writeError(w, "CancelByTime", err)
		return
	}
	h.writeSuccess(w, "CancelByTime", cancelled)
}

func (h *ReservationHandler) CheckCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body cancelBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, "CheckCancel", err)
		return
	}
	user, err := h.caller(r, body.requested())
	if err != nil {
		h.writeError(w, "CheckCancel", err)
		return
	}
	req := body.CancelRequest
	req.User = user
	req.ServiceName = sanitizer.SanitizeServiceName(req.ServiceName)
	req.Overrides = body.toModel()

	if err := h.service.CanCancel(r.Context(), &req); err != nil {
		h.writeError(w, "CheckCancel", err)
		return
	}
	h.writeSuccess(w, "CheckCancel", checkResult{OK: true})
}

func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := h.caller(r, false)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}
	reservation, err := h.confirmer.Confirm(r.Context(), ps.ByName("id"), user)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}
	h.writeSuccess(w, "Confirm", reservation)
}

func (h *ReservationHandler) Decline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := h.caller(r, false)
	if err != nil {
		h.writeError(w, "Decline", err)
		return
	}
	reservation, err := h.confirmer.Decline(r.Context(), ps.ByName("id"), user)
	if err != nil {
		h.writeError(w, "Decline", err)
		return
	}
	h.writeSuccess(w, "Decline", reservation)
}

func (h *ReservationHandler) Proposal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := h.caller(r, false)
	if err != nil {
		h.writeError(w, "Proposal", err)
		return
	}
	proposal, err := h.confirmer.Proposal(r.Context(), ps.ByName("id"), user)
	if err != nil {
		h.writeError(w, "Proposal", err)
		return
	}
	h.writeSuccess(w, "Proposal", proposal)
}

// Availability lists the offered start times for a service between min_start and max_start.
func (h *ReservationHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := h.availabilityQuery(r)
	if err != nil {
		h.writeError(w, "Availability", err)
		return
	}
	if q.AllowPast {
		if _, err := h.caller(r, true); err != nil {
			h.writeError(w, "Availability", err)
			return
		}
	}
	availability, err := h.service.AvailableDatetimes(r.Context(), q)
	if err != nil {
		h.writeError(w, "Availability", err)
		return
	}
	h.writeSuccess(w, "Availability", availability)
}

func (h *ReservationHandler) availabilityQuery(r *http.Request) (*model.AvailabilityQuery, error) {
	minStart, err := httputil.QueryTime(r, "min_start")
	if err != nil {
		return nil, err
	}
	if minStart == nil {
		return nil, apperrors.InvalidInput("min_start query parameter is required")
	}
	maxStart, err := httputil.QueryTime(r, "max_start")
	if err != nil {
		return nil, err
	}
	duration, err := httputil.QueryInt(r, "duration_min")
	if err != nil {
		return nil, err
	}
	return &model.AvailabilityQuery{
		ServiceName:  sanitizer.SanitizeServiceName(r.URL.Query().Get("service")),
		MinStartTime: *minStart,
		MaxStartTime: maxStart,
		DurationMin:  duration,
		AllowPast:    httputil.QueryBool(r, "allow_past"),
	}, nil
}

func (h *ReservationHandler) IsAvailable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start, err := httputil.QueryTime(r, "start")
	if err != nil {
		h.writeError(w, "IsAvailable", err)
		return
	}
	if start == nil {
		h.writeError(w, "IsAvailable", apperrors.InvalidInput("start query parameter is required"))
		return
	}
	duration, err := httputil.QueryInt(r, "duration_min")
	if err != nil {
		h.writeError(w, "IsAvailable", err)
		return
	}
	ok, err := h.service.IsAvailable(r.Context(), sanitizer.SanitizeServiceName(r.URL.Query().Get("service")), *start, duration)
	if err != nil {
		h.writeError(w, "IsAvailable", err)
		return
	}
	h.writeSuccess(w, "IsAvailable", checkResult{OK: ok})
}

func (h *ReservationHandler) Services(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	services, err := h.service.Services(r.Context())
	if err != nil {
		h.writeError(w, "Services", err)
		return
	}
	if err := httputil.WriteList(w, services, len(services)); err != nil {
		h.log.Error("failed to write list response", "handler", "Services", "operation", "WriteList", "error", err)
	}
}

func (h *ReservationHandler) OpeningHours(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.URL.Query().Get("date") == "" {
		h.writeSuccess(w, "OpeningHours", h.service.DefaultOpeningHours())
		return
	}
	day, err := httputil.QueryDate(r, "date", h.loc)
	if err != nil {
		h.writeError(w, "OpeningHours", err)
		return
	}
	hours, err := h.service.DailyOpeningHours(r.Context(), day)
	if err != nil {
		h.writeError(w, "OpeningHours", err)
		return
	}
	h.writeSuccess(w, "OpeningHours", hours)
}

// AllReservations lists every reservation, or those of one day when date is given.
func (h *ReservationHandler) AllReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := h.admin(r); err != nil {
		h.writeError(w, "AllReservations", err)
		return
	}

	var (
		reservations []*model.Reservation
		err          error
	)
	if r.URL.Query().Get("date") != "" {
		day, dateErr := httputil.QueryDate(r, "date", h.loc)
		if dateErr != nil {
			h.writeError(w, "AllReservations", dateErr)
			return
		}
		reservations, err = h.service.DailyReservations(r.Context(), day)
	} else {
		reservations, err = h.service.AllReservations(r.Context())
	}
	if err != nil {
		h.writeError(w, "AllReservations", err)
		return
	}
	if err := httputil.WriteList(w, reservations, len(reservations)); err != nil {
		h.log.Error("failed to write list response", "handler", "AllReservations", "operation", "WriteList", "error", err)
	}
}

func (h *ReservationHandler) AddOpeningWindow(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.changeOpeningWindow(w, r, "AddOpeningWindow", h.service.AddOpeningWindow)
}

func (h *ReservationHandler) RemoveOpeningWindow(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.changeOpeningWindow(w, r, "RemoveOpeningWindow", h.service.RemoveOpeningWindow)
}

func (h *ReservationHandler) changeOpeningWindow(
	w http.ResponseWriter,
	r *http.Request,
	handler string,
	apply func(ctx context.Context, start, end time.Time) error,
) {
	user, err := h.admin(r)
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	var body windowBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, handler, err)
		return
	}
	if err := apply(r.Context(), body.Start, body.End); err != nil {
		h.writeError(w, handler, err)
		return
	}
	h.log.Info("Opening hours changed", "handler", handler, "user", user, "start", body.Start, "end", body.End)
	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Reserve)
	router.GET("/api/v1/reservations", h.Mine)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
	router.PATCH("/api/v1/reservations/id/:id", h.Update)
	router.DELETE("/api/v1/reservations/id/:id", h.Delete)
	router.POST("/api/v1/reservations/reschedule", h.Reschedule)
	router.POST("/api/v1/reservations/cancel", h.CancelByTime)

	router.POST("/api/v1/checks/reserve", h.CheckReserve)
	router.POST("/api/v1/checks/update", h.CheckUpdate)
	router.POST("/api/v1/checks/cancel", h.CheckCancel)

	if h.confirmer != nil {
		router.POST("/api/v1/reservations/id/:id/confirm", h.Confirm)
		router.POST("/api/v1/reservations/id/:id/decline", h.Decline)
		router.GET("/api/v1/reservations/id/:id/proposal", h.Proposal)
	}

	router.GET("/api/v1/availability", h.Availability)
	router.GET("/api/v1/availability/check", h.IsAvailable)
	router.GET("/api/v1/services", h.Services)
	router.GET("/api/v1/opening-hours", h.OpeningHours)

	router.GET("/api/v1/admin/reservations", h.AllReservations)
	router.POST("/api/v1/admin/opening-windows", h.AddOpeningWindow)
	router.POST("/api/v1/admin/opening-windows/remove", h.RemoveOpeningWindow)
}
