package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// PointsService defines the methods that the points handler requires from
// the settlement engine.
type PointsService interface {
	GetEncryptedPoints(ctx context.Context, user common.Address) (domain.EncUint64, error)
}

// Decrypter reveals a confidential value to a principal on its access list.
// Satisfied by the coprocessor.
type Decrypter interface {
	UserDecryptUint64(ctx context.Context, h domain.Handle, caller common.Address) (uint64, error)
}

// PointsHandler serves points-balance endpoints.
type PointsHandler struct {
	points    PointsService
	decrypter Decrypter
	logger    *slog.Logger
}

// NewPointsHandler creates a PointsHandler with the given service, decrypter
// and logger.
func NewPointsHandler(points PointsService, decrypter Decrypter, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{
		points:    points,
		decrypter: decrypter,
		logger:    logger,
	}
}

// pointsResponse carries the opaque handle for a user's balance. An untouched
// account yields the all-zero handle.
type pointsResponse struct {
	User   string `json:"user"`
	Handle string `json:"handle"`
}

// GetPoints returns the encrypted points handle for a user. The handle is
// public; only principals on its access list can decrypt it.
// GET /api/points/{user}
func (h *PointsHandler) GetPoints(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r, "user")
	if !ok {
		writeError(w, http.StatusBadRequest, "user must be a hex address")
		return
	}

	enc, err := h.points.GetEncryptedPoints(r.Context(), user)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, pointsResponse{
		User:   user.Hex(),
		Handle: enc.Handle.Hex(),
	})
}

// clearPointsResponse carries a decrypted balance.
type clearPointsResponse struct {
	User    string `json:"user"`
	Balance uint64 `json:"balance"`
}

// GetClearPoints decrypts the caller's own balance. The path user must match
// the signed caller, and the decrypt succeeds only because settlement grants
// each user access to their own balance handle.
// GET /api/points/{user}/clear
func (h *PointsHandler) GetClearPoints(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	user, ok := addressParam(r, "user")
	if !ok {
		writeError(w, http.StatusBadRequest, "user must be a hex address")
		return
	}
	if user != addr {
		writeError(w, http.StatusForbidden, "can only decrypt your own balance")
		return
	}

	enc, err := h.points.GetEncryptedPoints(r.Context(), user)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	// An untouched account has no handle to decrypt; its balance is zero.
	if enc.Handle.IsZero() {
		writeJSON(w, http.StatusOK, clearPointsResponse{User: user.Hex(), Balance: 0})
		return
	}

	balance, err := h.decrypter.UserDecryptUint64(r.Context(), enc.Handle, addr)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, clearPointsResponse{User: user.Hex(), Balance: balance})
}
