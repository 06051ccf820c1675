package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	days   DayService
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided day service and
// logger.
func NewHealthHandler(days DayService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{days: days, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is
// alive, plus the ledger day it is currently operating in.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "oracled",
		"day":       uint32(h.days.CurrentDayIndex()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
