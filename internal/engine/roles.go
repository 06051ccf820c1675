package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// State returns the current role assignments and stake pool.
func (e *Engine) State(ctx context.Context) (domain.LedgerState, error) {
	return e.stores.State.Get(ctx)
}

// TransferOwnership hands the owner role to newOwner. Only the current owner
// may call it; the zero address is rejected.
func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get(ctx)
	if err != nil {
		return fmt.Errorf("engine: load state: %w", err)
	}
	if caller != state.Owner {
		return domain.ErrNotOwner
	}
	if newOwner == (common.Address{}) {
		return domain.ErrZeroAddress
	}

	if err := e.stores.State.SetOwner(ctx, newOwner); err != nil {
		return fmt.Errorf("engine: set owner: %w", err)
	}

	now := e.clock.Now()
	evt := domain.NewEvent(domain.EventOwnershipTransferred, now)
	evt.From = &state.Owner
	evt.To = &newOwner
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "ownership transferred",
		slog.String("from", state.Owner.Hex()),
		slog.String("to", newOwner.Hex()),
	)
	return nil
}

// SetOracle rotates the oracle role. Only the owner may rotate it; the oracle
// cannot rotate itself.
func (e *Engine) SetOracle(ctx context.Context, caller, newOracle common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get(ctx)
	if err != nil {
		return fmt.Errorf("engine: load state: %w", err)
	}
	if caller != state.Owner {
		return domain.ErrNotOwner
	}
	if newOracle == (common.Address{}) {
		return domain.ErrZeroAddress
	}

	if err := e.stores.State.SetOracle(ctx, newOracle); err != nil {
		return fmt.Errorf("engine: set oracle: %w", err)
	}

	now := e.clock.Now()
	evt := domain.NewEvent(domain.EventOracleRotated, now)
	evt.From = &state.Oracle
	evt.To = &newOracle
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "oracle rotated",
		slog.String("from", state.Oracle.Hex()),
		slog.String("to", newOracle.Hex()),
	)
	return nil
}

// Withdraw pays out amount from the accumulated stake pool to the given
// address. Only the owner may withdraw, and never more than the pool holds.
func (e *Engine) Withdraw(ctx context.Context, caller, to common.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.stores.State.Get(ctx)
	if err != nil {
		return fmt.Errorf("engine: load state: %w", err)
	}
	if caller != state.Owner {
		return domain.ErrNotOwner
	}
	if to == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if amount == 0 || amount > state.StakePool {
		return domain.ErrNothingToWithdraw
	}

	if err := e.stores.State.SubStake(ctx, amount); err != nil {
		return fmt.Errorf("engine: debit stake pool: %w", err)
	}

	now := e.clock.Now()
	evt := domain.NewEvent(domain.EventFundsWithdrawn, now)
	evt.To = &to
	evt.Amount = amount
	e.publish(ctx, evt)

	e.logger.InfoContext(ctx, "funds withdrawn",
		slog.String("to", to.Hex()),
		slog.Uint64("amount", amount),
	)
	return nil
}
