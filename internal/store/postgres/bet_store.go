package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/oracled/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create records a new bet. The primary key on (user_addr, asset, day)
// rejects duplicates even across concurrent writers.
func (s *BetStore) Create(ctx context.Context, bet domain.Bet) error {
	const query = `
		INSERT INTO bets (
			user_addr, asset, day, stake, claimed,
			predicted_handle, direction_handle, placed_at
		) VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		bet.User.Bytes(), int16(bet.Asset), int64(bet.Day), u64ToDB(bet.Stake),
		bet.PredictedPrice.Handle[:], bet.DirectionUp.Handle[:], bet.PlacedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrBetAlreadyExists
		}
		return fmt.Errorf("postgres: insert bet %s/%s/%d: %w", bet.User.Hex(), bet.Asset, bet.Day, err)
	}
	return nil
}

// Get returns the bet for (user, asset, day), reporting absence via ok=false.
func (s *BetStore) Get(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (domain.Bet, bool, error) {
	const query = `
		SELECT user_addr, asset, day, stake, claimed,
		       predicted_handle, direction_handle, placed_at
		FROM bets
		WHERE user_addr = $1 AND asset = $2 AND day = $3`

	bet, err := scanBet(s.pool.QueryRow(ctx, query, user.Bytes(), int16(asset), int64(day)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, false, nil
	}
	if err != nil {
		return domain.Bet{}, false, fmt.Errorf("postgres: get bet %s/%s/%d: %w", user.Hex(), asset, day, err)
	}
	return bet, true, nil
}

// MarkClaimed flips the claimed flag for the key.
func (s *BetStore) MarkClaimed(ctx context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) error {
	const query = `
		UPDATE bets SET claimed = TRUE
		WHERE user_addr = $1 AND asset = $2 AND day = $3`

	tag, err := s.pool.Exec(ctx, query, user.Bytes(), int16(asset), int64(day))
	if err != nil {
		return fmt.Errorf("postgres: mark bet claimed %s/%s/%d: %w", user.Hex(), asset, day, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

// ListClaimedByDay returns all settled bets for a target day.
func (s *BetStore) ListClaimedByDay(ctx context.Context, day domain.DayIndex) ([]domain.Bet, error) {
	const query = `
		SELECT user_addr, asset, day, stake, claimed,
		       predicted_handle, direction_handle, placed_at
		FROM bets
		WHERE day = $1 AND claimed
		ORDER BY asset, user_addr`

	rows, err := s.pool.Query(ctx, query, int64(day))
	if err != nil {
		return nil, fmt.Errorf("postgres: list claimed bets for day %d: %w", day, err)
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claimed bets for day %d: %w", day, err)
	}
	return out, nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		bet       domain.Bet
		userAddr  []byte
		asset     int16
		day       int64
		stake     int64
		predicted []byte
		direction []byte
	)
	err := row.Scan(&userAddr, &asset, &day, &stake, &bet.Claimed, &predicted, &direction, &bet.PlacedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	bet.User = common.BytesToAddress(userAddr)
	bet.Asset = domain.Asset(asset)
	bet.Day = domain.DayIndex(day)
	bet.Stake = u64FromDB(stake)
	copy(bet.PredictedPrice.Handle[:], predicted)
	copy(bet.DirectionUp.Handle[:], direction)
	return bet, nil
}

var _ domain.BetStore = (*BetStore)(nil)
