// Package fhe provides a process-local implementation of the confidential
// coprocessor contract in internal/domain. Ciphertexts are modeled as opaque
// 32-byte handles mapped to plaintexts held inside this package; callers
// outside the package can only combine handles through the domain.Coprocessor
// operations and decrypt via the per-handle access list.
package fhe

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cipherbet/oracled/internal/domain"
)

// OverflowMode selects the behavior of 64-bit confidential addition when the
// sum exceeds the uint64 range.
type OverflowMode string

const (
	// OverflowWrap wraps modulo 2^64.
	OverflowWrap OverflowMode = "wrap"
	// OverflowSaturate clamps to the maximum uint64.
	OverflowSaturate OverflowMode = "saturate"
)

// ParseOverflowMode validates a configured overflow mode string.
func ParseOverflowMode(s string) (OverflowMode, error) {
	switch OverflowMode(s) {
	case OverflowWrap, OverflowSaturate:
		return OverflowMode(s), nil
	case "":
		return OverflowWrap, nil
	default:
		return "", fmt.Errorf("fhe: unknown overflow mode %q", s)
	}
}

// kind tags the plaintext type behind a handle.
type kind uint8

const (
	kindUint64 kind = 1
	kindBool   kind = 2
)

// value is a decrypted ciphertext as held inside the coprocessor.
type value struct {
	kind kind
	u64  uint64
	b    bool
}

// inputRecord binds an externally encrypted input batch to its producer.
type inputRecord struct {
	caller  common.Address
	handles map[domain.Handle]kind
}

// Coprocessor implements domain.Coprocessor in-process. Handles are derived
// from a host-bound keccak chain so they are unique per instance and carry no
// information about the plaintext. State lives in memory; with a Store
// attached (see NewPersistent) every ledger-side ciphertext and grant is also
// written through, so handles referenced by durable records survive restarts.
type Coprocessor struct {
	host     common.Address
	overflow OverflowMode
	persist  Store

	mu     sync.RWMutex
	nonce  uint64
	values map[domain.Handle]value
	acl    map[domain.Handle]map[common.Address]struct{}
	inputs map[common.Hash]inputRecord
}

// New creates a Coprocessor bound to the given host address (the ledger
// instance identity external inputs are encrypted against).
func New(host common.Address, overflow OverflowMode) *Coprocessor {
	if overflow == "" {
		overflow = OverflowWrap
	}
	return &Coprocessor{
		host:     host,
		overflow: overflow,
		values:   make(map[domain.Handle]value),
		acl:      make(map[domain.Handle]map[common.Address]struct{}),
		inputs:   make(map[common.Hash]inputRecord),
	}
}

// Host returns the ledger identity this coprocessor is bound to.
func (c *Coprocessor) Host() common.Address { return c.host }

// newHandle derives the next opaque handle. Caller must hold c.mu.
func (c *Coprocessor) newHandle(k kind) domain.Handle {
	c.nonce++
	var buf [common.AddressLength + 8 + 1 + 8]byte
	copy(buf[:], c.host.Bytes())
	binary.BigEndian.PutUint64(buf[common.AddressLength:], c.nonce)
	buf[common.AddressLength+8] = byte(k)
	binary.BigEndian.PutUint64(buf[common.AddressLength+9:], uint64(time.Now().UnixNano()))

	var h domain.Handle
	copy(h[:], crypto.Keccak256(buf[:]))
	return h
}

// storeLocal records a plaintext under a fresh handle with an empty access
// list, memory only. Caller must hold c.mu.
func (c *Coprocessor) storeLocal(v value) domain.Handle {
	h := c.newHandle(v.kind)
	c.values[h] = v
	return h
}

// store records a plaintext under a fresh handle and writes it through to the
// attached Store, if any. A failed write-through discards the handle so the
// memory map never holds ciphertexts the durable tier does not. Caller must
// hold c.mu.
func (c *Coprocessor) store(ctx context.Context, v value) (domain.Handle, error) {
	h := c.storeLocal(v)
	if c.persist != nil {
		sv := StoredValue{Handle: h, Kind: uint8(v.kind), Uint64: v.u64, Bool: v.b}
		if err := c.persist.SaveValue(ctx, sv); err != nil {
			delete(c.values, h)
			return domain.Handle{}, fmt.Errorf("fhe: persist ciphertext: %w", err)
		}
	}
	return h, nil
}

// get resolves a handle to its plaintext, checking the expected kind.
// Caller must hold c.mu (read).
func (c *Coprocessor) get(h domain.Handle, k kind) (value, error) {
	v, ok := c.values[h]
	if !ok {
		return value{}, fmt.Errorf("fhe: unknown handle %s: %w", h.Hex(), domain.ErrNotFound)
	}
	if v.kind != k {
		return value{}, fmt.Errorf("fhe: handle %s has wrong type: %w", h.Hex(), domain.ErrInvalidProof)
	}
	return v, nil
}

// EncryptUint64 lifts a plaintext into a fresh ciphertext handle.
func (c *Coprocessor) EncryptUint64(ctx context.Context, v uint64) (domain.EncUint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.store(ctx, value{kind: kindUint64, u64: v})
	if err != nil {
		return domain.EncUint64{}, err
	}
	return domain.EncUint64{Handle: h}, nil
}

// Gt returns an encrypted boolean for a > b.
func (c *Coprocessor) Gt(ctx context.Context, a, b domain.EncUint64) (domain.EncBool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	av, err := c.get(a.Handle, kindUint64)
	if err != nil {
		return domain.EncBool{}, err
	}
	bv, err := c.get(b.Handle, kindUint64)
	if err != nil {
		return domain.EncBool{}, err
	}
	h, err := c.store(ctx, value{kind: kindBool, b: av.u64 > bv.u64})
	if err != nil {
		return domain.EncBool{}, err
	}
	return domain.EncBool{Handle: h}, nil
}

// Eq returns an encrypted boolean for a == b.
func (c *Coprocessor) Eq(ctx context.Context, a, b domain.EncBool) (domain.EncBool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	av, err := c.get(a.Handle, kindBool)
	if err != nil {
		return domain.EncBool{}, err
	}
	bv, err := c.get(b.Handle, kindBool)
	if err != nil {
		return domain.EncBool{}, err
	}
	h, err := c.store(ctx, value{kind: kindBool, b: av.b == bv.b})
	if err != nil {
		return domain.EncBool{}, err
	}
	return domain.EncBool{Handle: h}, nil
}

// Select returns ifTrue when cond holds, ifFalse otherwise. The result is a
// fresh handle either way, so observers cannot tell which branch was taken.
func (c *Coprocessor) Select(ctx context.Context, cond domain.EncBool, ifTrue, ifFalse domain.EncUint64) (domain.EncUint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cv, err := c.get(cond.Handle, kindBool)
	if err != nil {
		return domain.EncUint64{}, err
	}
	tv, err := c.get(ifTrue.Handle, kindUint64)
	if err != nil {
		return domain.EncUint64{}, err
	}
	fv, err := c.get(ifFalse.Handle, kindUint64)
	if err != nil {
		return domain.EncUint64{}, err
	}

	out := fv.u64
	if cv.b {
		out = tv.u64
	}
	h, err := c.store(ctx, value{kind: kindUint64, u64: out})
	if err != nil {
		return domain.EncUint64{}, err
	}
	return domain.EncUint64{Handle: h}, nil
}

// Add returns a + b under the configured overflow mode.
func (c *Coprocessor) Add(ctx context.Context, a, b domain.EncUint64) (domain.EncUint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	av, err := c.get(a.Handle, kindUint64)
	if err != nil {
		return domain.EncUint64{}, err
	}
	bv, err := c.get(b.Handle, kindUint64)
	if err != nil {
		return domain.EncUint64{}, err
	}

	sum := av.u64 + bv.u64
	if c.overflow == OverflowSaturate && sum < av.u64 {
		sum = ^uint64(0)
	}
	h, err := c.store(ctx, value{kind: kindUint64, u64: sum})
	if err != nil {
		return domain.EncUint64{}, err
	}
	return domain.EncUint64{Handle: h}, nil
}

// Allow grants who decryption rights on the ciphertext behind h. The grant is
// written through before it takes effect in memory.
func (c *Coprocessor) Allow(ctx context.Context, h domain.Handle, who common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[h]; !ok {
		return fmt.Errorf("fhe: allow on unknown handle %s: %w", h.Hex(), domain.ErrNotFound)
	}
	if c.persist != nil {
		if err := c.persist.SaveGrant(ctx, StoredGrant{Handle: h, Grantee: who}); err != nil {
			return fmt.Errorf("fhe: persist grant: %w", err)
		}
	}
	grants, ok := c.acl[h]
	if !ok {
		grants = make(map[common.Address]struct{})
		c.acl[h] = grants
	}
	grants[who] = struct{}{}
	return nil
}

// UserDecryptUint64 reveals the plaintext behind h to caller. It returns
// domain.ErrUnauthorized unless caller has been granted access via Allow.
func (c *Coprocessor) UserDecryptUint64(_ context.Context, h domain.Handle, caller common.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, err := c.get(h, kindUint64)
	if err != nil {
		return 0, err
	}
	if _, ok := c.acl[h][caller]; !ok {
		return 0, fmt.Errorf("fhe: decrypt %s by %s: %w", h.Hex(), caller.Hex(), domain.ErrUnauthorized)
	}
	return v.u64, nil
}

// Compile-time interface check.
var _ domain.Coprocessor = (*Coprocessor)(nil)
