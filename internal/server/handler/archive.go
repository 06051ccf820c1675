package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cipherbet/oracled/internal/domain"
)

// ArchiveHandler serves cold-storage archive files for closed days. It is
// only registered when object storage is configured.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates a new ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger.With(slog.String("handler", "archive")),
	}
}

// GetDay streams one day's archive file (JSONL) from object storage.
// GET /api/archive/{kind}/{day}
func (h *ArchiveHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	if kind != "prices" && kind != "bets" {
		writeError(w, http.StatusBadRequest, "unknown archive kind: "+kind)
		return
	}

	day, err := dayParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day index")
		return
	}

	rc, err := h.blobs.Get(r.Context(), fmt.Sprintf("archive/%s/day-%d.jsonl", kind, day))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archive for that day")
			return
		}
		h.logger.ErrorContext(r.Context(), "archive fetch failed",
			slog.String("kind", kind),
			slog.Uint64("day", uint64(day)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("kind", kind),
			slog.Uint64("day", uint64(day)),
			slog.String("error", err.Error()),
		)
	}
}
