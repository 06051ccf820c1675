package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// PriceStore persists the daily price ledger.
type PriceStore interface {
	// Create appends a new price record. It returns ErrPriceAlreadyPosted if
	// a record for (rec.Asset, rec.Day) already exists.
	Create(ctx context.Context, rec PriceRecord) error

	// Get returns the record for (asset, day). The ok result is false when no
	// record exists; absence is not an error.
	Get(ctx context.Context, asset Asset, day DayIndex) (rec PriceRecord, ok bool, err error)

	// ListByDay returns all records posted for the given day.
	ListByDay(ctx context.Context, day DayIndex) ([]PriceRecord, error)
}

// BetStore persists the bet ledger.
type BetStore interface {
	// Create records a new bet. It returns ErrBetAlreadyExists if the
	// (bet.User, bet.Asset, bet.Day) key is occupied.
	Create(ctx context.Context, bet Bet) error

	// Get returns the bet for the key. The ok result is false when absent.
	Get(ctx context.Context, user common.Address, asset Asset, day DayIndex) (bet Bet, ok bool, err error)

	// MarkClaimed flips the claimed flag for the key. It returns
	// ErrBetNotFound if no bet exists.
	MarkClaimed(ctx context.Context, user common.Address, asset Asset, day DayIndex) error

	// ListClaimedByDay returns all settled bets for the given target day.
	ListClaimedByDay(ctx context.Context, day DayIndex) ([]Bet, error)
}

// PointsStore persists confidential points balances.
type PointsStore interface {
	// Get returns the account for user. The ok result is false when the
	// account has never been touched.
	Get(ctx context.Context, user common.Address) (acct PointsAccount, ok bool, err error)

	// Put creates or replaces the account.
	Put(ctx context.Context, acct PointsAccount) error
}

// StateStore persists the singleton role and stake-pool state.
type StateStore interface {
	Get(ctx context.Context) (LedgerState, error)
	SetOwner(ctx context.Context, owner common.Address) error
	SetOracle(ctx context.Context, oracle common.Address) error

	// AddStake credits the stake pool with a received stake.
	AddStake(ctx context.Context, amount uint64) error

	// SubStake debits the stake pool for a withdrawal. It returns
	// ErrNothingToWithdraw if amount exceeds the current pool.
	SubStake(ctx context.Context, amount uint64) error
}
