package fhe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cipherbet/oracled/internal/domain"
)

// memStore is an in-memory fhe.Store standing in for the database tier.
type memStore struct {
	mu     sync.Mutex
	values map[domain.Handle]StoredValue
	grants map[StoredGrant]struct{}

	saveErr error
}

func newMemStore() *memStore {
	return &memStore{
		values: make(map[domain.Handle]StoredValue),
		grants: make(map[StoredGrant]struct{}),
	}
}

func (s *memStore) SaveValue(_ context.Context, v StoredValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.values[v.Handle] = v
	return nil
}

func (s *memStore) SaveGrant(_ context.Context, g StoredGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.grants[g] = struct{}{}
	return nil
}

func (s *memStore) LoadValues(_ context.Context) ([]StoredValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredValue, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) LoadGrants(_ context.Context) ([]StoredGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredGrant, 0, len(s.grants))
	for g := range s.grants {
		out = append(out, g)
	}
	return out, nil
}

func TestPersistent_HandlesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	cop1, err := NewPersistent(ctx, testHost, OverflowWrap, store)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	// A ledger-bound external input plus a settlement-style chain, the
	// shapes whose handles end up in durable records.
	handles, proof, err := cop1.EncryptInput(testAlice).AddUint64(4200).AddBool(true).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	predicted, err := cop1.Uint64FromExternal(ctx, handles[0], proof, testAlice)
	if err != nil {
		t.Fatalf("Uint64FromExternal: %v", err)
	}
	direction, err := cop1.BoolFromExternal(ctx, handles[1], proof, testAlice)
	if err != nil {
		t.Fatalf("BoolFromExternal: %v", err)
	}

	stake, _ := cop1.EncryptUint64(ctx, 9)
	zero, _ := cop1.EncryptUint64(ctx, 0)
	balance, err := cop1.Add(ctx, stake, zero)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cop1.Allow(ctx, balance.Handle, testAlice); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	// A second coprocessor over the same store models a process restart.
	cop2, err := NewPersistent(ctx, testHost, OverflowWrap, store)
	if err != nil {
		t.Fatalf("NewPersistent after restart: %v", err)
	}

	// The restored bet handles must still settle.
	actual, err := cop2.EncryptUint64(ctx, 4300)
	if err != nil {
		t.Fatalf("EncryptUint64: %v", err)
	}
	up, err := cop2.Gt(ctx, actual, predicted)
	if err != nil {
		t.Fatalf("Gt over restored handle: %v", err)
	}
	if _, err := cop2.Eq(ctx, up, direction); err != nil {
		t.Fatalf("Eq over restored handle: %v", err)
	}

	// The restored grant must still decrypt.
	got, err := cop2.UserDecryptUint64(ctx, balance.Handle, testAlice)
	if err != nil {
		t.Fatalf("UserDecryptUint64 after restart: %v", err)
	}
	if got != 9 {
		t.Fatalf("restored balance = %d, want 9", got)
	}
	// And stays scoped to the granted principal.
	if _, err := cop2.UserDecryptUint64(ctx, balance.Handle, testBob); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after restart, got %v", err)
	}
}

func TestPersistent_PendingInputBatchesAreNotRestored(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	cop1, err := NewPersistent(ctx, testHost, OverflowWrap, store)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}
	handles, proof, err := cop1.EncryptInput(testAlice).AddUint64(1).Encrypt()
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	cop2, err := NewPersistent(ctx, testHost, OverflowWrap, store)
	if err != nil {
		t.Fatalf("NewPersistent after restart: %v", err)
	}
	// The batch was never bound to the ledger, so the restarted process
	// rejects its proof and the client re-encrypts.
	if _, err := cop2.Uint64FromExternal(ctx, handles[0], proof, testAlice); !errors.Is(err, domain.ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for stale batch, got %v", err)
	}
}

func TestPersistent_FailedWriteThroughDiscardsHandle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	cop, err := NewPersistent(ctx, testHost, OverflowWrap, store)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	store.saveErr = errors.New("database down")
	if _, err := cop.EncryptUint64(ctx, 7); err == nil {
		t.Fatalf("expected error when the write-through fails")
	}
	store.saveErr = nil

	// No half-written ciphertexts: memory and store agree.
	values, _ := store.LoadValues(ctx)
	if len(values) != 0 {
		t.Fatalf("store holds %d values after failed write, want 0", len(values))
	}
	enc, err := cop.EncryptUint64(ctx, 7)
	if err != nil {
		t.Fatalf("EncryptUint64 after recovery: %v", err)
	}
	if enc.IsZero() {
		t.Fatalf("expected a usable handle after recovery")
	}
}
