package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// AdminService defines the owner-gated operations the admin handler exposes.
type AdminService interface {
	State(ctx context.Context) (domain.LedgerState, error)
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	SetOracle(ctx context.Context, caller, newOracle common.Address) error
	Withdraw(ctx context.Context, caller, to common.Address, amount uint64) error
}

// AdminHandler serves owner-only administration endpoints. Authorization is
// two-layered: the admin API key gates the route, and the engine checks the
// signed caller against the stored owner.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// stateResponse is the public view of the ledger's control state.
type stateResponse struct {
	Owner     string `json:"owner"`
	Oracle    string `json:"oracle"`
	StakePool uint64 `json:"stake_pool"`
}

// GetState returns the current owner, oracle and stake pool.
// GET /api/admin/state
func (h *AdminHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.State(r.Context())
	if writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{
		Owner:     st.Owner.Hex(),
		Oracle:    st.Oracle.Hex(),
		StakePool: st.StakePool,
	})
}

// addressRequest carries a single target address.
type addressRequest struct {
	Address string `json:"address"`
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return common.Address{}, false
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "address must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(req.Address), true
}

// SetOracle rotates the oracle role to a new address.
// POST /api/admin/oracle
func (h *AdminHandler) SetOracle(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	target, ok := decodeAddress(w, r)
	if !ok {
		return
	}

	if err := h.admin.SetOracle(r.Context(), addr, target); writeDomainError(w, h.logger, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"oracle": target.Hex()})
}

// TransferOwnership hands the owner role to a new address.
// POST /api/admin/ownership
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	target, ok := decodeAddress(w, r)
	if !ok {
		return
	}

	if err := h.admin.TransferOwnership(r.Context(), addr, target); writeDomainError(w, h.logger, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": target.Hex()})
}

// withdrawRequest carries the destination and amount for a stake withdrawal.
type withdrawRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Withdraw moves accumulated stake out of the pool to the given address.
// POST /api/admin/withdraw
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "to must be a hex address")
		return
	}

	if err := h.admin.Withdraw(r.Context(), addr, common.HexToAddress(req.To), req.Amount); writeDomainError(w, h.logger, r, err) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"to":     common.HexToAddress(req.To).Hex(),
		"amount": req.Amount,
	})
}
