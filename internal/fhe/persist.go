package fhe

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// StoredValue is the durable form of a ciphertext: the opaque handle plus the
// plaintext it protects. Kind uses the same codes the coprocessor uses
// internally (1 for uint64, 2 for bool).
type StoredValue struct {
	Handle domain.Handle
	Kind   uint8
	Uint64 uint64
	Bool   bool
}

// StoredGrant is the durable form of a decryption grant.
type StoredGrant struct {
	Handle  domain.Handle
	Grantee common.Address
}

// Store persists coprocessor state so handles referenced by durable ledger
// records stay resolvable across process restarts. Saves must be idempotent:
// a handle or grant written twice is the same handle or grant.
type Store interface {
	SaveValue(ctx context.Context, v StoredValue) error
	SaveGrant(ctx context.Context, g StoredGrant) error
	LoadValues(ctx context.Context) ([]StoredValue, error)
	LoadGrants(ctx context.Context) ([]StoredGrant, error)
}

// NewPersistent creates a Coprocessor that restores all previously persisted
// ciphertexts and grants from store and writes every new ledger-side
// ciphertext and grant through to it. Pending external input batches are not
// restored; clients re-encrypt after a restart.
func NewPersistent(ctx context.Context, host common.Address, overflow OverflowMode, store Store) (*Coprocessor, error) {
	c := New(host, overflow)
	c.persist = store

	values, err := store.LoadValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("fhe: restore ciphertexts: %w", err)
	}
	for _, v := range values {
		switch kind(v.Kind) {
		case kindUint64, kindBool:
		default:
			return nil, fmt.Errorf("fhe: restore %s: unknown kind %d", v.Handle.Hex(), v.Kind)
		}
		c.values[v.Handle] = value{kind: kind(v.Kind), u64: v.Uint64, b: v.Bool}
	}

	grants, err := store.LoadGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("fhe: restore grants: %w", err)
	}
	for _, g := range grants {
		set, ok := c.acl[g.Handle]
		if !ok {
			set = make(map[common.Address]struct{})
			c.acl[g.Handle] = set
		}
		set[g.Grantee] = struct{}{}
	}
	return c, nil
}
