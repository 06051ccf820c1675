package fhe

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cipherbet/oracled/internal/domain"
)

// InputBuilder assembles an externally encrypted input batch the way a
// client wallet would: values are encrypted against a (host, caller) pair and
// sealed with a proof that the ledger later verifies via the FromExternal
// operations.
type InputBuilder struct {
	cop    *Coprocessor
	caller common.Address
	order  []domain.Handle
	kinds  map[domain.Handle]kind
}

// EncryptInput starts a new input batch for the given caller.
func (c *Coprocessor) EncryptInput(caller common.Address) *InputBuilder {
	return &InputBuilder{
		cop:    c,
		caller: caller,
		kinds:  make(map[domain.Handle]kind),
	}
}

// AddUint64 appends an encrypted uint64 to the batch. Batch values stay
// memory-only until a FromExternal operation binds them to the ledger; a
// client whose batch predates a restart re-encrypts and retries.
func (b *InputBuilder) AddUint64(v uint64) *InputBuilder {
	b.cop.mu.Lock()
	defer b.cop.mu.Unlock()

	h := b.cop.storeLocal(value{kind: kindUint64, u64: v})
	b.order = append(b.order, h)
	b.kinds[h] = kindUint64
	return b
}

// AddBool appends an encrypted boolean to the batch.
func (b *InputBuilder) AddBool(v bool) *InputBuilder {
	b.cop.mu.Lock()
	defer b.cop.mu.Unlock()

	h := b.cop.storeLocal(value{kind: kindBool, b: v})
	b.order = append(b.order, h)
	b.kinds[h] = kindBool
	return b
}

// Encrypt seals the batch and returns the ciphertext handles in insertion
// order together with the input proof binding them to (host, caller).
func (b *InputBuilder) Encrypt() ([]domain.Handle, []byte, error) {
	if len(b.order) == 0 {
		return nil, nil, fmt.Errorf("fhe: empty input batch: %w", domain.ErrInvalidProof)
	}

	buf := make([]byte, 0, common.AddressLength*2+len(b.order)*32)
	buf = append(buf, b.cop.host.Bytes()...)
	buf = append(buf, b.caller.Bytes()...)
	for _, h := range b.order {
		buf = append(buf, h[:]...)
	}
	proof := crypto.Keccak256(buf)

	b.cop.mu.Lock()
	defer b.cop.mu.Unlock()

	rec := inputRecord{caller: b.caller, handles: make(map[domain.Handle]kind, len(b.order))}
	for h, k := range b.kinds {
		rec.handles[h] = k
	}
	b.cop.inputs[common.BytesToHash(proof)] = rec

	handles := make([]domain.Handle, len(b.order))
	copy(handles, b.order)
	return handles, proof, nil
}

// fromExternal validates an external handle against its proof and returns a
// fresh internal ciphertext carrying the same plaintext. The internal copy is
// written through to the attached Store, so a handle that reaches a durable
// record outlives this process.
func (c *Coprocessor) fromExternal(ctx context.Context, h domain.Handle, proof []byte, caller common.Address, k kind) (domain.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.inputs[common.BytesToHash(proof)]
	if !ok {
		return domain.Handle{}, fmt.Errorf("fhe: unknown input proof: %w", domain.ErrInvalidProof)
	}
	if rec.caller != caller {
		return domain.Handle{}, fmt.Errorf("fhe: input proof bound to %s, used by %s: %w",
			rec.caller.Hex(), caller.Hex(), domain.ErrInvalidProof)
	}
	gotKind, ok := rec.handles[h]
	if !ok {
		return domain.Handle{}, fmt.Errorf("fhe: handle %s not covered by proof: %w", h.Hex(), domain.ErrInvalidProof)
	}
	if gotKind != k {
		return domain.Handle{}, fmt.Errorf("fhe: handle %s has wrong type: %w", h.Hex(), domain.ErrInvalidProof)
	}

	v, found := c.values[h]
	if !found {
		return domain.Handle{}, fmt.Errorf("fhe: external handle %s missing: %w", h.Hex(), domain.ErrInvalidProof)
	}
	return c.store(ctx, v)
}

// Uint64FromExternal binds an external uint64 ciphertext to this ledger.
func (c *Coprocessor) Uint64FromExternal(ctx context.Context, h domain.Handle, proof []byte, caller common.Address) (domain.EncUint64, error) {
	out, err := c.fromExternal(ctx, h, proof, caller, kindUint64)
	if err != nil {
		return domain.EncUint64{}, err
	}
	return domain.EncUint64{Handle: out}, nil
}

// BoolFromExternal binds an external boolean ciphertext to this ledger.
func (c *Coprocessor) BoolFromExternal(ctx context.Context, h domain.Handle, proof []byte, caller common.Address) (domain.EncBool, error) {
	out, err := c.fromExternal(ctx, h, proof, caller, kindBool)
	if err != nil {
		return domain.EncBool{}, err
	}
	return domain.EncBool{Handle: out}, nil
}
