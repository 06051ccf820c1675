package handler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/fhe"
)

// InputEncrypter registers caller-bound confidential inputs. Satisfied by
// the coprocessor.
type InputEncrypter interface {
	EncryptInput(caller common.Address) *fhe.InputBuilder
}

// InputHandler serves the input-registration endpoint. It plays the role the
// relayer plays in a production deployment: plaintext values are turned into
// opaque handles plus a proof bound to the caller, which the caller then
// submits with a bet.
type InputHandler struct {
	encrypter InputEncrypter
	logger    *slog.Logger
}

// NewInputHandler creates an InputHandler with the given encrypter and logger.
func NewInputHandler(encrypter InputEncrypter, logger *slog.Logger) *InputHandler {
	return &InputHandler{encrypter: encrypter, logger: logger}
}

// inputValue is one plaintext value to encrypt. Type selects which field is
// read: "uint64" or "bool".
type inputValue struct {
	Type   string `json:"type"`
	Uint64 uint64 `json:"uint64"`
	Bool   bool   `json:"bool"`
}

// encryptInputRequest is the body for registering confidential inputs.
type encryptInputRequest struct {
	Values []inputValue `json:"values"`
}

// encryptInputResponse returns one handle per input value plus the shared
// proof binding them to the caller.
type encryptInputResponse struct {
	Handles []string `json:"handles"`
	Proof   string   `json:"proof"`
}

// EncryptInput registers the signed caller's plaintext values with the
// coprocessor and returns caller-bound handles and proof.
// POST /api/inputs
func (h *InputHandler) EncryptInput(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req encryptInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values must not be empty")
		return
	}

	builder := h.encrypter.EncryptInput(addr)
	for i, v := range req.Values {
		switch v.Type {
		case "uint64":
			builder.AddUint64(v.Uint64)
		case "bool":
			builder.AddBool(v.Bool)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown input type %q at index %d", v.Type, i))
			return
		}
	}

	handles, proof, err := builder.Encrypt()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: encrypt input failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to encrypt input")
		return
	}

	resp := encryptInputResponse{
		Handles: make([]string, 0, len(handles)),
		Proof:   "0x" + hex.EncodeToString(proof),
	}
	for _, hd := range handles {
		resp.Handles = append(resp.Handles, hd.Hex())
	}

	writeJSON(w, http.StatusOK, resp)
}
