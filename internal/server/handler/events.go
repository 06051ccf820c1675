package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cipherbet/oracled/internal/domain"
)

// EventStream provides catch-up reads over the durable event stream.
// Satisfied by the redis signal bus.
type EventStream interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves the ledger event backlog. Live consumers use the
// WebSocket hub; this endpoint lets clients catch up after a disconnect by
// replaying from the last stream ID they saw.
type EventsHandler struct {
	events EventStream
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading from the named stream.
func NewEventsHandler(events EventStream, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		events: events,
		stream: stream,
		logger: logger.With(slog.String("handler", "events")),
	}
}

// eventEntry pairs a stream ID with the event payload so clients can resume
// from where they left off.
type eventEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type listEventsResponse struct {
	Events []eventEntry `json:"events"`
}

// ListEvents returns events recorded after the given stream ID.
// GET /api/events?after=0-0&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0-0"
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	msgs, err := h.events.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "event stream read failed",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]eventEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, eventEntry{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: entries})
}
