package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// ClaimService defines the methods that the claim handler requires from the
// settlement engine.
type ClaimService interface {
	Claim(ctx context.Context, caller common.Address, asset domain.Asset, day domain.DayIndex) error
}

// ClaimHandler serves the claim endpoint.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, logger: logger}
}

// claimRequest identifies the bet the signed caller wants settled.
type claimRequest struct {
	Asset string `json:"asset"`
	Day   uint32 `json:"day"`
}

// Claim settles the caller's bet for (asset, day). Settlement runs entirely
// on encrypted values; the response never indicates whether the bet won.
// POST /api/claims
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset: "+req.Asset)
		return
	}

	if err := h.claims.Claim(r.Context(), addr, asset, domain.DayIndex(req.Day)); writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "claimed",
	})
}
