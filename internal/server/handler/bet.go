package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// BetService defines the methods that the bet handler requires from the
// settlement engine.
type BetService interface {
	PlaceBet(ctx context.Context, caller common.Address, asset domain.Asset, encPredicted, encDirection domain.Handle, proof []byte, stake uint64) (domain.DayIndex, error)
	GetBet(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (domain.Bet, bool, error)
	IsBetClaimable(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (bool, error)
}

// BetHandler serves bet-related HTTP endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// placeBetRequest carries the confidential prediction: two input handles and
// the proof binding them to the caller, all hex-encoded.
type placeBetRequest struct {
	Asset           string `json:"asset"`
	Stake           uint64 `json:"stake"`
	PredictedHandle string `json:"predicted_handle"`
	DirectionHandle string `json:"direction_handle"`
	Proof           string `json:"proof"`
}

// placeBetResponse reports the day the new bet settles against.
type placeBetResponse struct {
	TargetDay uint32 `json:"target_day"`
}

// betResponse is the JSON form of a stored bet. Prediction handles are
// opaque; the underlying values stay inside the coprocessor.
type betResponse struct {
	User            string    `json:"user"`
	Asset           string    `json:"asset"`
	Day             uint32    `json:"day"`
	Stake           uint64    `json:"stake"`
	Claimed         bool      `json:"claimed"`
	PredictedHandle string    `json:"predicted_handle"`
	DirectionHandle string    `json:"direction_handle"`
	PlacedAt        time.Time `json:"placed_at"`
}

func toBetResponse(b domain.Bet) betResponse {
	return betResponse{
		User:            b.User.Hex(),
		Asset:           b.Asset.String(),
		Day:             uint32(b.Day),
		Stake:           b.Stake,
		Claimed:         b.Claimed,
		PredictedHandle: b.PredictedPrice.Handle.Hex(),
		DirectionHandle: b.DirectionUp.Handle.Hex(),
		PlacedAt:        b.PlacedAt,
	}
}

// PlaceBet places a confidential prediction for tomorrow on behalf of the
// signed caller.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset: "+req.Asset)
		return
	}

	predicted, err := domain.HandleFromHex(req.PredictedHandle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid predicted_handle")
		return
	}
	direction, err := domain.HandleFromHex(req.DirectionHandle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid direction_handle")
		return
	}
	proof, err := hex.DecodeString(strings.TrimPrefix(req.Proof, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}

	targetDay, err := h.bets.PlaceBet(r.Context(), addr, asset, predicted, direction, proof, req.Stake)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusCreated, placeBetResponse{TargetDay: uint32(targetDay)})
}

// GetBet returns the signed caller's bet for (asset, day).
// GET /api/bets/{asset}/{day}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset")
		return
	}
	day, err := dayParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day index")
		return
	}

	bet, found, err := h.bets.GetBet(r.Context(), addr, asset, day)
	if writeDomainError(w, h.logger, r, err) {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "bet not found")
		return
	}

	writeJSON(w, http.StatusOK, toBetResponse(bet))
}

// claimableResponse reports whether a bet can currently be claimed.
type claimableResponse struct {
	Claimable bool `json:"claimable"`
}

// IsClaimable reports whether the bet for (user, asset, day) is claimable.
// The check is public: claimability reveals only what the posted price and
// the passage of time already reveal.
// GET /api/bets/{asset}/{day}/claimable?user=0x...
func (h *BetHandler) IsClaimable(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset")
		return
	}
	day, err := dayParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day index")
		return
	}

	rawUser := r.URL.Query().Get("user")
	if !common.IsHexAddress(rawUser) {
		writeError(w, http.StatusBadRequest, "user query parameter must be a hex address")
		return
	}

	claimable, err := h.bets.IsBetClaimable(r.Context(), common.HexToAddress(rawUser), asset, day)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, claimableResponse{Claimable: claimable})
}
