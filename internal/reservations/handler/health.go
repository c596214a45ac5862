package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"agenda/pkg/contracts"
	httputil "agenda/pkg/http"
	"agenda/pkg/logger"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Segments int    `json:"segments"`
}

type HealthHandler struct {
	db       contracts.Pinger
	segments func() int
	log      *logger.Logger
}

// NewHealthHandler reports liveness and readiness. db may be nil when no catalog database is
// configured; segments reports the number of opening windows in the calendar.
func NewHealthHandler(db contracts.Pinger, segments func() int, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		segments: segments,
		log:      log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Segments: h.segments(),
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	database := "disabled"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.log.Error("Database health check failed",
				"error", err,
				"path", r.URL.Path,
			)
			if writeErr := httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:   "unavailable",
				Database: "error",
			}); writeErr != nil {
				h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", writeErr)
			}
			return
		}
		database = "ok"
	}

	// an empty calendar can take no reservations
	if h.segments() == 0 {
		if err := httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "no opening hours",
			Database: database,
		}); err != nil {
			h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
		}
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:   "ready",
		Database: database,
		Segments: h.segments(),
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
