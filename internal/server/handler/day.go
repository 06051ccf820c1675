package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cipherbet/oracled/internal/domain"
)

// DayService reports the ledger's current day.
type DayService interface {
	CurrentDayIndex() domain.DayIndex
}

// DayHandler serves the current-day endpoint.
type DayHandler struct {
	days   DayService
	logger *slog.Logger
}

// NewDayHandler creates a DayHandler with the given service and logger.
func NewDayHandler(days DayService, logger *slog.Logger) *DayHandler {
	return &DayHandler{days: days, logger: logger}
}

// dayResponse describes the current settlement day.
type dayResponse struct {
	Day      uint32    `json:"day"`
	DayStart time.Time `json:"day_start"`
}

// CurrentDay returns the current day index and the instant it began.
// GET /api/day
func (h *DayHandler) CurrentDay(w http.ResponseWriter, r *http.Request) {
	day := h.days.CurrentDayIndex()
	writeJSON(w, http.StatusOK, dayResponse{
		Day:      uint32(day),
		DayStart: day.Start(),
	})
}
