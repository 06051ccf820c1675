package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/oracled/internal/domain"
)

// StateStore implements domain.StateStore using PostgreSQL. The state lives
// in a single ledger_state row.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Init inserts the singleton row on first boot, leaving an existing row
// untouched. The initial owner also holds the oracle role.
func (s *StateStore) Init(ctx context.Context, owner common.Address) error {
	const query = `
		INSERT INTO ledger_state (id, owner_addr, oracle_addr, stake_pool)
		VALUES (1, $1, $1, 0)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, owner.Bytes()); err != nil {
		return fmt.Errorf("postgres: init ledger state: %w", err)
	}
	return nil
}

// Get returns the current ledger state.
func (s *StateStore) Get(ctx context.Context) (domain.LedgerState, error) {
	const query = `SELECT owner_addr, oracle_addr, stake_pool FROM ledger_state WHERE id = 1`

	var (
		state  domain.LedgerState
		owner  []byte
		oracle []byte
		pool   int64
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&owner, &oracle, &pool); err != nil {
		return domain.LedgerState{}, fmt.Errorf("postgres: get ledger state: %w", err)
	}
	state.Owner = common.BytesToAddress(owner)
	state.Oracle = common.BytesToAddress(oracle)
	state.StakePool = u64FromDB(pool)
	return state, nil
}

// SetOwner replaces the owner role.
func (s *StateStore) SetOwner(ctx context.Context, owner common.Address) error {
	const query = `UPDATE ledger_state SET owner_addr = $1 WHERE id = 1`
	if _, err := s.pool.Exec(ctx, query, owner.Bytes()); err != nil {
		return fmt.Errorf("postgres: set owner: %w", err)
	}
	return nil
}

// SetOracle replaces the oracle role.
func (s *StateStore) SetOracle(ctx context.Context, oracle common.Address) error {
	const query = `UPDATE ledger_state SET oracle_addr = $1 WHERE id = 1`
	if _, err := s.pool.Exec(ctx, query, oracle.Bytes()); err != nil {
		return fmt.Errorf("postgres: set oracle: %w", err)
	}
	return nil
}

// AddStake credits the stake pool.
func (s *StateStore) AddStake(ctx context.Context, amount uint64) error {
	const query = `UPDATE ledger_state SET stake_pool = stake_pool + $1 WHERE id = 1`
	if _, err := s.pool.Exec(ctx, query, u64ToDB(amount)); err != nil {
		return fmt.Errorf("postgres: add stake: %w", err)
	}
	return nil
}

// SubStake debits the stake pool. The guarded UPDATE makes the overdraft
// check atomic with the decrement.
func (s *StateStore) SubStake(ctx context.Context, amount uint64) error {
	const query = `
		UPDATE ledger_state SET stake_pool = stake_pool - $1
		WHERE id = 1 AND stake_pool >= $1`

	tag, err := s.pool.Exec(ctx, query, u64ToDB(amount))
	if err != nil {
		return fmt.Errorf("postgres: sub stake: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNothingToWithdraw
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
