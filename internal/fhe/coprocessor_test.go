package fhe

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

var (
	testHost  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testAlice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testBob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestExternalInput_VerifyAndUse(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	handles, proof, err := cop.EncryptInput(testAlice).AddUint64(4200).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}

	enc, err := cop.Uint64FromExternal(ctx, handles[0], proof, testAlice)
	if err != nil {
		t.Fatalf("Uint64FromExternal: %v", err)
	}
	dir, err := cop.BoolFromExternal(ctx, handles[1], proof, testAlice)
	if err != nil {
		t.Fatalf("BoolFromExternal: %v", err)
	}
	if enc.IsZero() || dir.IsZero() {
		t.Fatalf("expected non-zero internal handles")
	}
}

func TestExternalInput_RejectsWrongCaller(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	handles, proof, err := cop.EncryptInput(testAlice).AddUint64(1).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := cop.Uint64FromExternal(ctx, handles[0], proof, testBob); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for wrong caller, got %v", err)
	}
}

func TestExternalInput_RejectsWrongKindAndForeignHandle(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	handles, proof, err := cop.EncryptInput(testAlice).AddUint64(1).AddBool(false).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// uint64 handle presented as a bool.
	if _, err := cop.BoolFromExternal(ctx, handles[0], proof, testAlice); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for kind mismatch, got %v", err)
	}

	// Handle not covered by the proof.
	other, err := cop.EncryptUint64(ctx, 7)
	if err != nil {
		t.Fatalf("EncryptUint64: %v", err)
	}
	if _, err := cop.Uint64FromExternal(ctx, other.Handle, proof, testAlice); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for uncovered handle, got %v", err)
	}
}

func TestConfidentialOps(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	a, _ := cop.EncryptUint64(ctx, 10)
	b, _ := cop.EncryptUint64(ctx, 3)

	gt, err := cop.Gt(ctx, a, b)
	if err != nil {
		t.Fatalf("Gt: %v", err)
	}
	lt, err := cop.Gt(ctx, b, a)
	if err != nil {
		t.Fatalf("Gt: %v", err)
	}
	eq, err := cop.Eq(ctx, gt, lt)
	if err != nil {
		t.Fatalf("Eq: %v", err)
	}

	picked, err := cop.Select(ctx, eq, a, b)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// gt != lt, so eq is false and Select yields b.
	if err := cop.Allow(ctx, picked.Handle, testAlice); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	got, err := cop.UserDecryptUint64(ctx, picked.Handle, testAlice)
	if err != nil {
		t.Fatalf("UserDecryptUint64: %v", err)
	}
	if got != 3 {
		t.Fatalf("Select picked %d, want 3", got)
	}

	sum, err := cop.Add(ctx, a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cop.Allow(ctx, sum.Handle, testAlice); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if got, _ := cop.UserDecryptUint64(ctx, sum.Handle, testAlice); got != 13 {
		t.Fatalf("Add = %d, want 13", got)
	}
}

func TestSelect_ResultIsFreshHandle(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	a, _ := cop.EncryptUint64(ctx, 5)
	b, _ := cop.EncryptUint64(ctx, 9)
	condTrue, _ := cop.Gt(ctx, b, a)

	picked, err := cop.Select(ctx, condTrue, b, a)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// Even when the taken branch is ifTrue, the output handle must not be
	// the input handle, or the branch would be visible to observers.
	if picked.Handle == b.Handle || picked.Handle == a.Handle {
		t.Fatalf("Select leaked an input handle")
	}
}

func TestAdd_OverflowModes(t *testing.T) {
	ctx := context.Background()
	max := ^uint64(0)

	wrap := New(testHost, OverflowWrap)
	a, _ := wrap.EncryptUint64(ctx, max)
	b, _ := wrap.EncryptUint64(ctx, 2)
	sum, err := wrap.Add(ctx, a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = wrap.Allow(ctx, sum.Handle, testAlice)
	if got, _ := wrap.UserDecryptUint64(ctx, sum.Handle, testAlice); got != 1 {
		t.Fatalf("wrap overflow = %d, want 1", got)
	}

	sat := New(testHost, OverflowSaturate)
	a, _ = sat.EncryptUint64(ctx, max)
	b, _ = sat.EncryptUint64(ctx, 2)
	sum, err = sat.Add(ctx, a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = sat.Allow(ctx, sum.Handle, testAlice)
	if got, _ := sat.UserDecryptUint64(ctx, sum.Handle, testAlice); got != max {
		t.Fatalf("saturate overflow = %d, want %d", got, max)
	}
}

func TestUserDecrypt_RequiresGrant(t *testing.T) {
	ctx := context.Background()
	cop := New(testHost, OverflowWrap)

	v, _ := cop.EncryptUint64(ctx, 42)

	if _, err := cop.UserDecryptUint64(ctx, v.Handle, testAlice); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before grant, got %v", err)
	}

	if err := cop.Allow(ctx, v.Handle, testAlice); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	got, err := cop.UserDecryptUint64(ctx, v.Handle, testAlice)
	if err != nil {
		t.Fatalf("UserDecryptUint64 after grant: %v", err)
	}
	if got != 42 {
		t.Fatalf("decrypted %d, want 42", got)
	}

	// The grant is per-principal: bob still cannot decrypt.
	if _, err := cop.UserDecryptUint64(ctx, v.Handle, testBob); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for ungranted principal, got %v", err)
	}
}

func TestParseOverflowMode(t *testing.T) {
	if m, err := ParseOverflowMode(""); err != nil || m != OverflowWrap {
		t.Fatalf("empty mode: got %v, %v", m, err)
	}
	if m, err := ParseOverflowMode("saturate"); err != nil || m != OverflowSaturate {
		t.Fatalf("saturate: got %v, %v", m, err)
	}
	if _, err := ParseOverflowMode("clamp"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
