package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// PriceService defines the methods that the price handler requires from the
// settlement engine.
type PriceService interface {
	PostPrice(ctx context.Context, caller common.Address, asset domain.Asset, price uint64) (domain.PriceRecord, error)
	GetDailyPrice(ctx context.Context, asset domain.Asset, day domain.DayIndex) (domain.PriceRecord, bool, error)
}

// PriceHandler serves price-related HTTP endpoints. The latest-price read
// goes through the cache when one is configured and falls back to the
// authoritative store otherwise.
type PriceHandler struct {
	prices PriceService
	cache  domain.PriceCache // may be nil
	days   DayService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. cache may be nil when Redis is not
// configured.
func NewPriceHandler(prices PriceService, cache domain.PriceCache, days DayService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		cache:  cache,
		days:   days,
		logger: logger,
	}
}

// priceResponse is the JSON form of a posted price.
type priceResponse struct {
	Asset    string    `json:"asset"`
	Day      uint32    `json:"day"`
	Price    uint64    `json:"price"`
	PostedAt time.Time `json:"posted_at"`
}

func toPriceResponse(rec domain.PriceRecord) priceResponse {
	return priceResponse{
		Asset:    rec.Asset.String(),
		Day:      uint32(rec.Day),
		Price:    rec.Price,
		PostedAt: rec.PostedAt,
	}
}

// postPriceRequest is the body for posting today's observed price.
type postPriceRequest struct {
	Asset string `json:"asset"`
	Price uint64 `json:"price"`
}

// PostPrice records the day's observed price for an asset. Only the oracle
// role may call this; the price for a day is immutable once posted.
// POST /api/prices
func (h *PriceHandler) PostPrice(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req postPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset: "+req.Asset)
		return
	}

	rec, err := h.prices.PostPrice(r.Context(), addr, asset, req.Price)
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusCreated, toPriceResponse(rec))
}

// getPriceResponse wraps the exists-sentinel read: absence of a price is a
// normal answer, not an error.
type getPriceResponse struct {
	Exists bool           `json:"exists"`
	Price  *priceResponse `json:"price,omitempty"`
}

// GetPrice returns the posted price for (asset, day), with exists=false when
// no price has been posted yet.
// GET /api/prices/{asset}/{day}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
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

	rec, found, err := h.prices.GetDailyPrice(r.Context(), asset, day)
	if writeDomainError(w, h.logger, r, err) {
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, getPriceResponse{Exists: false})
		return
	}

	resp := toPriceResponse(rec)
	writeJSON(w, http.StatusOK, getPriceResponse{Exists: true, Price: &resp})
}

// GetLatest returns the most recently posted price for an asset. The cache
// is consulted first; a miss falls back to today's store entry.
// GET /api/prices/{asset}/latest
func (h *PriceHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	asset, err := assetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown asset")
		return
	}

	if h.cache != nil {
		rec, err := h.cache.GetLatest(r.Context(), asset)
		if err == nil {
			writeJSON(w, http.StatusOK, toPriceResponse(rec))
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: price cache read failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	rec, found, err := h.prices.GetDailyPrice(r.Context(), asset, h.days.CurrentDayIndex())
	if writeDomainError(w, h.logger, r, err) {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no price posted yet")
		return
	}

	writeJSON(w, http.StatusOK, toPriceResponse(rec))
}
