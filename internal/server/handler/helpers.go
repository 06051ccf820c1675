package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
	"github.com/cipherbet/oracled/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps ledger sentinel errors to HTTP responses. It returns
// false when err is nil so callers can use it as a guard.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, domain.ErrNotOracle), errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBetNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBetAlreadyExists), errors.Is(err, domain.ErrPriceAlreadyPosted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPriceNotAvailable),
		errors.Is(err, domain.ErrBetNotClaimable),
		errors.Is(err, domain.ErrInvalidStake),
		errors.Is(err, domain.ErrInvalidProof),
		errors.Is(err, domain.ErrUnknownAsset),
		errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrNothingToWithdraw):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return true
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// assetParam parses the {asset} path segment. Accepts symbolic names and
// numeric identifiers.
func assetParam(r *http.Request) (domain.Asset, error) {
	return domain.ParseAsset(pathParam(r, "asset"))
}

// dayParam parses the {day} path segment as a day index.
func dayParam(r *http.Request) (domain.DayIndex, error) {
	n, err := strconv.ParseUint(pathParam(r, "day"), 10, 32)
	if err != nil {
		return 0, err
	}
	return domain.DayIndex(n), nil
}

// addressParam parses a path segment as a hex Ethereum address.
func addressParam(r *http.Request, name string) (common.Address, bool) {
	raw := pathParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// caller returns the signature-authenticated address, or fails the request
// with 401 when the middleware did not run.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
	}
	return addr, ok
}
