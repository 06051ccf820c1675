package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/oracled/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique-constraint hit.
const uniqueViolation = "23505"

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Create appends a price record. The primary key on (asset, day) makes
// re-posting fail even across concurrent writers.
func (s *PriceStore) Create(ctx context.Context, rec domain.PriceRecord) error {
	const query = `
		INSERT INTO daily_prices (asset, day, price, posted_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query,
		int16(rec.Asset), int64(rec.Day), u64ToDB(rec.Price), rec.PostedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrPriceAlreadyPosted
		}
		return fmt.Errorf("postgres: insert price %s/%d: %w", rec.Asset, rec.Day, err)
	}
	return nil
}

// Get returns the record for (asset, day), reporting absence via ok=false.
func (s *PriceStore) Get(ctx context.Context, asset domain.Asset, day domain.DayIndex) (domain.PriceRecord, bool, error) {
	const query = `
		SELECT asset, day, price, posted_at
		FROM daily_prices
		WHERE asset = $1 AND day = $2`

	rec, err := scanPrice(s.pool.QueryRow(ctx, query, int16(asset), int64(day)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PriceRecord{}, false, nil
	}
	if err != nil {
		return domain.PriceRecord{}, false, fmt.Errorf("postgres: get price %s/%d: %w", asset, day, err)
	}
	return rec, true, nil
}

// ListByDay returns all records posted for the given day, ordered by asset.
func (s *PriceStore) ListByDay(ctx context.Context, day domain.DayIndex) ([]domain.PriceRecord, error) {
	const query = `
		SELECT asset, day, price, posted_at
		FROM daily_prices
		WHERE day = $1
		ORDER BY asset`

	rows, err := s.pool.Query(ctx, query, int64(day))
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices for day %d: %w", day, err)
	}
	defer rows.Close()

	var out []domain.PriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prices for day %d: %w", day, err)
	}
	return out, nil
}

func scanPrice(row pgx.Row) (domain.PriceRecord, error) {
	var (
		rec   domain.PriceRecord
		asset int16
		day   int64
		price int64
	)
	if err := row.Scan(&asset, &day, &price, &rec.PostedAt); err != nil {
		return domain.PriceRecord{}, err
	}
	rec.Asset = domain.Asset(asset)
	rec.Day = domain.DayIndex(day)
	rec.Price = u64FromDB(price)
	return rec, nil
}

var _ domain.PriceStore = (*PriceStore)(nil)
