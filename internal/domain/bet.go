package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bet is one user's confidential prediction for one asset on one target day.
// The key (User, Asset, Day) admits at most one bet; a bet is mutated exactly
// once, when a successful claim flips Claimed, and is never deleted.
type Bet struct {
	User  common.Address
	Asset Asset
	Day   DayIndex // target day; always placement day + 1

	Stake   uint64 // native-currency smallest unit
	Claimed bool

	PredictedPrice EncUint64
	DirectionUp    EncBool // encrypted "actual > predicted" flag

	PlacedAt time.Time
}

// PointsAccount is a user's confidential reward balance. The balance handle
// is replaced on every credit and only the account owner holds decryption
// rights on the current handle.
type PointsAccount struct {
	User      common.Address
	Balance   EncUint64
	UpdatedAt time.Time
}

// LedgerState holds the singleton role assignments and the plaintext stake
// pool (total received stakes minus prior withdrawals).
type LedgerState struct {
	Owner     common.Address
	Oracle    common.Address
	StakePool uint64
}
