package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/crypto"
	"github.com/cipherbet/oracled/internal/domain"
)

// maxSignedBodySize caps the request body read for signature verification.
const maxSignedBodySize = 1 << 20 // 1 MiB

// maxNonceLen caps the client-chosen nonce so the registry cannot be fed
// unbounded keys.
const maxNonceLen = 128

type contextKey string

// callerKey stores the recovered caller address in the request context.
const callerKey contextKey = "caller"

// CallerFromContext returns the address recovered by the Signature
// middleware. ok is false when the request was not signature-authenticated.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey).(common.Address)
	return addr, ok
}

// Signature returns middleware that authenticates requests by recovering a
// secp256k1 address from the X-Signature header. The signature covers the
// canonical request form (method, path, X-Timestamp, X-Nonce, body hash);
// maxSkew bounds how far the signed timestamp may drift from server time, and
// the nonce is registered in nonces so an identical request is rejected on
// its second appearance. The recovered address is stored in the request
// context for handlers.
func Signature(maxSkew time.Duration, nonces domain.NonceRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get("X-Signature")
			if sig == "" {
				writeUnauthorized(w, "missing X-Signature header")
				return
			}

			ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or invalid X-Timestamp header")
				return
			}
			if skew := time.Since(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				writeUnauthorized(w, "signed timestamp outside allowed skew")
				return
			}

			nonce := r.Header.Get("X-Nonce")
			if nonce == "" || len(nonce) > maxNonceLen {
				writeUnauthorized(w, "missing or invalid X-Nonce header")
				return
			}

			// The body is consumed for hashing, then restored so the
			// handler can decode it normally.
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := crypto.RecoverAddress(r.Method, r.URL.Path, body, ts, nonce, sig)
			if err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			// Nonces only need to outlive the skew window; past it the
			// timestamp check rejects the replay on its own. Fail closed
			// when the registry is unavailable.
			fresh, err := nonces.Register(r.Context(), nonce, 2*maxSkew)
			if err != nil {
				writeUnauthorized(w, "nonce registry unavailable")
				return
			}
			if !fresh {
				writeUnauthorized(w, "replayed request nonce")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
