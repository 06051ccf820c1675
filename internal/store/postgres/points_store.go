package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/oracled/internal/domain"
)

// PointsStore implements domain.PointsStore using PostgreSQL.
type PointsStore struct {
	pool *pgxpool.Pool
}

// NewPointsStore creates a PointsStore backed by the given connection pool.
func NewPointsStore(pool *pgxpool.Pool) *PointsStore {
	return &PointsStore{pool: pool}
}

// Get returns the account for user, reporting absence via ok=false.
func (s *PointsStore) Get(ctx context.Context, user common.Address) (domain.PointsAccount, bool, error) {
	const query = `
		SELECT balance_handle, updated_at
		FROM points_accounts
		WHERE user_addr = $1`

	var (
		acct    domain.PointsAccount
		balance []byte
	)
	err := s.pool.QueryRow(ctx, query, user.Bytes()).Scan(&balance, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PointsAccount{}, false, nil
	}
	if err != nil {
		return domain.PointsAccount{}, false, fmt.Errorf("postgres: get points %s: %w", user.Hex(), err)
	}
	acct.User = user
	copy(acct.Balance.Handle[:], balance)
	return acct, true, nil
}

// Put creates or replaces the account.
func (s *PointsStore) Put(ctx context.Context, acct domain.PointsAccount) error {
	const query = `
		INSERT INTO points_accounts (user_addr, balance_handle, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_addr) DO UPDATE SET
			balance_handle = EXCLUDED.balance_handle,
			updated_at     = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, acct.User.Bytes(), acct.Balance.Handle[:], acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put points %s: %w", acct.User.Hex(), err)
	}
	return nil
}

var _ domain.PointsStore = (*PointsStore)(nil)
