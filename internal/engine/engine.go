// Package engine implements the daily prediction-settlement ledger: price
// posting, bet admission, the claim lifecycle, confidential settlement, and
// the owner/oracle role operations.
//
// Every state-mutating entry point runs under a single mutex, giving the
// ledger one global sequential order with one observation of "now" per call.
// Each operation completes all precondition checks before its first mutation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// Stores bundles the persistence dependencies of the engine.
type Stores struct {
	Prices domain.PriceStore
	Bets   domain.BetStore
	Points domain.PointsStore
	State  domain.StateStore
}

// Options carries the optional collaborators. A nil Publisher disables event
// emission; a nil PriceCache disables the latest-price fast path.
type Options struct {
	Publisher  domain.EventPublisher
	PriceCache domain.PriceCache
	Clock      domain.Clock
}

// Engine is the settlement engine. It owns no plaintext secrets: predictions,
// directions, and points balances only pass through it as coprocessor handles.
type Engine struct {
	mu sync.Mutex

	clock  domain.Clock
	cop    domain.Coprocessor
	stores Stores
	pub    domain.EventPublisher
	cache  domain.PriceCache
	logger *slog.Logger
}

// New creates an Engine from its dependencies.
func New(cop domain.Coprocessor, stores Stores, opts Options, logger *slog.Logger) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Engine{
		clock:  clock,
		cop:    cop,
		stores: stores,
		pub:    opts.Publisher,
		cache:  opts.PriceCache,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// CurrentDayIndex returns the day index of the engine's current clock reading.
func (e *Engine) CurrentDayIndex() domain.DayIndex {
	return domain.DayIndexAt(e.clock.Now())
}

// PostPrice records the oracle's price for (asset, today). The record is
// immutable: re-posting the same key fails and leaves the original intact.
func (e *Engine) PostPrice(ctx context.Context, caller common.Address, asset domain.Asset, price uint64) (domain.PriceRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get(ctx)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("engine: load state: %w", err)
	}
	if caller != state.Oracle {
		return domain.PriceRecord{}, domain.ErrNotOracle
	}

	now := e.clock.Now()
	day := domain.DayIndexAt(now)

	if _, ok, err := e.stores.Prices.Get(ctx, asset, day); err != nil {
		return domain.PriceRecord{}, fmt.Errorf("engine: check price %s/%d: %w", asset, day, err)
	} else if ok {
		return domain.PriceRecord{}, domain.ErrPriceAlreadyPosted
	}

	rec := domain.PriceRecord{Asset: asset, Day: day, Price: price, PostedAt: now}
	if err := e.stores.Prices.Create(ctx, rec); err != nil {
		return domain.PriceRecord{}, fmt.Errorf("engine: create price %s/%d: %w", asset, day, err)
	}

	if e.cache != nil {
		if err := e.cache.SetLatest(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "price cache update failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	evt := domain.NewEvent(domain.EventPriceUpdated, now)
	evt.Asset = &rec.Asset
	evt.Day = &rec.Day
	evt.Price = rec.Price
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "price posted",
		slog.String("asset", asset.String()),
		slog.Uint64("day", uint64(day)),
		slog.Uint64("price", price),
	)
	return rec, nil
}

// GetDailyPrice returns the posted price for (asset, day). Absence is
// reported via ok=false, never as an error.
func (e *Engine) GetDailyPrice(ctx context.Context, asset domain.Asset, day domain.DayIndex) (domain.PriceRecord, bool, error) {
	return e.stores.Prices.Get(ctx, asset, day)
}

// PlaceBet admits a confidential prediction for tomorrow and returns the
// target day. The attached native value must equal stake; that equality is
// enforced by the enclosing transport, not re-checked here.
func (e *Engine) PlaceBet(
	ctx context.Context,
	caller common.Address,
	asset domain.Asset,
	encPredicted domain.Handle,
	encDirection domain.Handle,
	proof []byte,
	stake uint64,
) (domain.DayIndex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stake == 0 {
		return 0, domain.ErrInvalidStake
	}

	now := e.clock.Now()
	targetDay := domain.DayIndexAt(now) + 1

	if _, ok, err := e.stores.Bets.Get(ctx, caller, asset, targetDay); err != nil {
		return 0, fmt.Errorf("engine: check bet %s/%s/%d: %w", caller.Hex(), asset, targetDay, err)
	} else if ok {
		return 0, domain.ErrBetAlreadyExists
	}

	predicted, err := e.cop.Uint64FromExternal(ctx, encPredicted, proof, caller)
	if err != nil {
		return 0, fmt.Errorf("engine: verify predicted price input: %w", err)
	}
	direction, err := e.cop.BoolFromExternal(ctx, encDirection, proof, caller)
	if err != nil {
		return 0, fmt.Errorf("engine: verify direction input: %w", err)
	}

	bet := domain.Bet{
		User:           caller,
		Asset:          asset,
		Day:            targetDay,
		Stake:          stake,
		PredictedPrice: predicted,
		DirectionUp:    direction,
		PlacedAt:       now,
	}

	// The stake is pooled before the bet record exists so a partial failure
	// can only leave an over-funded pool, never a bet whose stake was lost.
	// A failed insert rolls the pool back.
	if err := e.stores.State.AddStake(ctx, stake); err != nil {
		return 0, fmt.Errorf("engine: credit stake pool: %w", err)
	}
	if err := e.stores.Bets.Create(ctx, bet); err != nil {
		if subErr := e.stores.State.SubStake(ctx, stake); subErr != nil {
			e.logger.ErrorContext(ctx, "stake rollback failed",
				slog.String("user", caller.Hex()),
				slog.String("asset", asset.String()),
				slog.Uint64("stake", stake),
				slog.String("error", subErr.Error()),
			)
		}
		return 0, fmt.Errorf("engine: create bet %s/%s/%d: %w", caller.Hex(), asset, targetDay, err)
	}

	evt := domain.NewEvent(domain.EventBetPlaced, now)
	evt.User = &bet.User
	evt.Asset = &bet.Asset
	evt.Day = &bet.Day
	evt.Stake = bet.Stake
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "bet placed",
		slog.String("user", caller.Hex()),
		slog.String("asset", asset.String()),
		slog.Uint64("target_day", uint64(targetDay)),
		slog.Uint64("stake", stake),
	)
	return targetDay, nil
}

// GetBet returns the bet for (user, asset, day) with absence via ok=false.
func (e *Engine) GetBet(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (domain.Bet, bool, error) {
	return e.stores.Bets.Get(ctx, user, asset, day)
}

// IsBetClaimable reports whether the bet for (user, asset, day) can be
// settled now: it exists, is unclaimed, its day's price is posted, and the
// target day has fully closed. It has no side effects.
func (e *Engine) IsBetClaimable(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (bool, error) {
	bet, ok, err := e.stores.Bets.Get(ctx, user, asset, day)
	if err != nil {
		return false, fmt.Errorf("engine: load bet: %w", err)
	}
	if !ok || bet.Claimed {
		return false, nil
	}

	if _, ok, err := e.stores.Prices.Get(ctx, asset, day); err != nil {
		return false, fmt.Errorf("engine: load price: %w", err)
	} else if !ok {
		return false, nil
	}

	// The oracle posts during the target day itself; settlement must wait
	// for the day to close so the posted price can no longer be in flight.
	return domain.DayIndexAt(e.clock.Now()) > day, nil
}

// Claim settles the caller's bet for (asset, day). On the success path the
// outcome is evaluated confidentially and the stake is credited to the
// caller's points balance when the prediction was correct; the claimed flag
// is set either way, so a claim never pays twice and win/loss never shows in
// plaintext control flow.
func (e *Engine) Claim(ctx context.Context, caller common.Address, asset domain.Asset, day domain.DayIndex) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bet, ok, err := e.stores.Bets.Get(ctx, caller, asset, day)
	if err != nil {
		return fmt.Errorf("engine: load bet %s/%s/%d: %w", caller.Hex(), asset, day, err)
	}
	if !ok {
		return domain.ErrBetNotFound
	}

	price, ok, err := e.stores.Prices.Get(ctx, asset, day)
	if err != nil {
		return fmt.Errorf("engine: load price %s/%d: %w", asset, day, err)
	}
	if !ok {
		return domain.ErrPriceNotAvailable
	}

	now := e.clock.Now()
	if bet.Claimed || domain.DayIndexAt(now) <= day {
		return domain.ErrBetNotClaimable
	}

	// The claimed flag is spent before any points are credited. If settlement
	// fails afterwards the claim stays spent, so a retry can never pay the
	// same bet twice; the failure is logged for operator remediation instead.
	if err := e.stores.Bets.MarkClaimed(ctx, caller, asset, day); err != nil {
		return fmt.Errorf("engine: mark claimed %s/%s/%d: %w", caller.Hex(), asset, day, err)
	}

	if err := e.settle(ctx, bet, price.Price, now); err != nil {
		e.logger.ErrorContext(ctx, "settlement failed after claim was spent",
			slog.String("user", caller.Hex()),
			slog.String("asset", asset.String()),
			slog.Uint64("day", uint64(day)),
			slog.String("error", err.Error()),
		)
		return err
	}

	evt := domain.NewEvent(domain.EventBetClaimed, now)
	evt.User = &bet.User
	evt.Asset = &bet.Asset
	evt.Day = &bet.Day
	evt.Stake = bet.Stake
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "bet claimed",
		slog.String("user", caller.Hex()),
		slog.String("asset", asset.String()),
		slog.Uint64("day", uint64(day)),
	)
	return nil
}

// settle performs the confidential evaluation and accrual for a claimable
// bet. The award is derived with a confidential select so the same sequence
// of coprocessor calls runs whether the prediction won or lost.
func (e *Engine) settle(ctx context.Context, bet domain.Bet, actualPrice uint64, now time.Time) error {
	actual, err := e.cop.EncryptUint64(ctx, actualPrice)
	if err != nil {
		return fmt.Errorf("engine: lift actual price: %w", err)
	}
	actualGreater, err := e.cop.Gt(ctx, actual, bet.PredictedPrice)
	if err != nil {
		return fmt.Errorf("engine: compare prices: %w", err)
	}
	correct, err := e.cop.Eq(ctx, actualGreater, bet.DirectionUp)
	if err != nil {
		return fmt.Errorf("engine: compare direction: %w", err)
	}

	stakeEnc, err := e.cop.EncryptUint64(ctx, bet.Stake)
	if err != nil {
		return fmt.Errorf("engine: lift stake: %w", err)
	}
	zero, err := e.cop.EncryptUint64(ctx, 0)
	if err != nil {
		return fmt.Errorf("engine: lift zero: %w", err)
	}
	award, err := e.cop.Select(ctx, correct, stakeEnc, zero)
	if err != nil {
		return fmt.Errorf("engine: select award: %w", err)
	}

	acct, ok, err := e.stores.Points.Get(ctx, bet.User)
	if err != nil {
		return fmt.Errorf("engine: load points %s: %w", bet.User.Hex(), err)
	}
	balance := acct.Balance
	if !ok || balance.IsZero() {
		// First touch: the account starts at confidential zero.
		balance = zero
	}

	newBalance, err := e.cop.Add(ctx, balance, award)
	if err != nil {
		return fmt.Errorf("engine: accrue points: %w", err)
	}

	// The add produced a fresh handle with an empty access list; the grant
	// must be re-issued for the owner to keep decryption rights.
	if err := e.cop.Allow(ctx, newBalance.Handle, bet.User); err != nil {
		return fmt.Errorf("engine: grant points access: %w", err)
	}

	return e.stores.Points.Put(ctx, domain.PointsAccount{
		User:      bet.User,
		Balance:   newBalance,
		UpdatedAt: now,
	})
}

// GetEncryptedPoints returns the handle of user's points balance, or the
// zero-handle sentinel when the account has never been credited.
func (e *Engine) GetEncryptedPoints(ctx context.Context, user common.Address) (domain.EncUint64, error) {
	acct, ok, err := e.stores.Points.Get(ctx, user)
	if err != nil {
		return domain.EncUint64{}, fmt.Errorf("engine: load points %s: %w", user.Hex(), err)
	}
	if !ok {
		return domain.EncUint64{}, nil
	}
	return acct.Balance, nil
}

// publish emits an event when a publisher is wired. Best-effort only.
func (e *Engine) publish(ctx context.Context, evt domain.Event) {
	if e.pub != nil {
		e.pub.PublishEvent(ctx, evt)
	}
}
