package domain

import "errors"

// Role errors: the caller or an address argument is structurally disallowed.
// They are checked before any state is touched and are never retryable.
var (
	ErrNotOracle   = errors.New("caller is not the oracle")
	ErrNotOwner    = errors.New("caller is not the owner")
	ErrZeroAddress = errors.New("zero address")
)

// State errors: the requested transition is invalid for the current ledger
// state. Callers should re-check state before retrying.
var (
	ErrBetAlreadyExists   = errors.New("bet already exists")
	ErrBetNotFound        = errors.New("bet not found")
	ErrPriceAlreadyPosted = errors.New("price already posted")
	ErrPriceNotAvailable  = errors.New("price not available")
	ErrBetNotClaimable    = errors.New("bet not claimable")
)

// Input errors: the request itself is malformed and must not be retried
// unmodified.
var (
	ErrInvalidStake = errors.New("invalid stake")
	ErrInvalidProof = errors.New("invalid ciphertext proof")
	ErrUnknownAsset = errors.New("unknown asset")
)

// Funds errors.
var (
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)

// Infrastructure errors shared by stores and caches.
var (
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrUnauthorized = errors.New("unauthorized")
)
