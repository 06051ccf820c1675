package domain

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// Handle is an opaque 32-byte reference to a ciphertext held by the
// confidential coprocessor. The engine never sees the plaintext behind a
// handle; it only combines handles through the Coprocessor and grants
// per-handle decryption rights.
type Handle [32]byte

// ZeroHandle is the sentinel for "no ciphertext". A points account that has
// never been credited reports ZeroHandle, which clients render as clear zero.
var ZeroHandle Handle

// IsZero reports whether h is the ZeroHandle sentinel.
func (h Handle) IsZero() bool { return h == ZeroHandle }

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h Handle) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// HandleFromHex parses a 0x-prefixed 64-character hex string into a Handle.
func HandleFromHex(s string) (Handle, error) {
	var h Handle
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, ErrInvalidProof
	}
	copy(h[:], b)
	return h, nil
}

// EncUint64 is a handle known to reference an encrypted uint64.
type EncUint64 struct{ Handle }

// EncBool is a handle known to reference an encrypted boolean.
type EncBool struct{ Handle }

// Coprocessor is the confidential-computation collaborator. Implementations
// perform arithmetic and comparison on ciphertexts without revealing the
// operands; every operation returns a fresh handle whose access list starts
// empty, so decryption rights must be re-granted after each derivation.
//
// The engine must never branch plaintext control flow on the content behind
// a handle; outcome-dependent values go through Select.
type Coprocessor interface {
	// Uint64FromExternal binds an externally produced uint64 ciphertext to
	// this ledger and caller, verifying the accompanying input proof. It
	// returns ErrInvalidProof when the proof does not match.
	Uint64FromExternal(ctx context.Context, h Handle, proof []byte, caller common.Address) (EncUint64, error)

	// BoolFromExternal is Uint64FromExternal for boolean ciphertexts.
	BoolFromExternal(ctx context.Context, h Handle, proof []byte, caller common.Address) (EncBool, error)

	// EncryptUint64 lifts a plaintext uint64 into a ciphertext. Used for the
	// realized price (public anyway) and for confidential zero.
	EncryptUint64(ctx context.Context, v uint64) (EncUint64, error)

	// Gt returns an encrypted boolean for a > b.
	Gt(ctx context.Context, a, b EncUint64) (EncBool, error)

	// Eq returns an encrypted boolean for a == b.
	Eq(ctx context.Context, a, b EncBool) (EncBool, error)

	// Select returns ifTrue when cond holds, ifFalse otherwise, without
	// revealing which branch was taken.
	Select(ctx context.Context, cond EncBool, ifTrue, ifFalse EncUint64) (EncUint64, error)

	// Add returns a + b. Overflow behavior is implementation-defined
	// (wraparound or saturation) and configured on the coprocessor.
	Add(ctx context.Context, a, b EncUint64) (EncUint64, error)

	// Allow grants who the right to decrypt the ciphertext behind h.
	Allow(ctx context.Context, h Handle, who common.Address) error
}
