package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/oracled/internal/fhe"
)

// FHEStore implements fhe.Store using PostgreSQL, keeping coprocessor
// ciphertexts and grants in the same database as the ledger records that
// reference their handles.
type FHEStore struct {
	pool *pgxpool.Pool
}

// NewFHEStore creates an FHEStore backed by the given connection pool.
func NewFHEStore(pool *pgxpool.Pool) *FHEStore {
	return &FHEStore{pool: pool}
}

// SaveValue records a ciphertext. Handles are content-free keccak outputs, so
// a conflicting insert can only be a replay of the same write.
func (s *FHEStore) SaveValue(ctx context.Context, v fhe.StoredValue) error {
	const query = `
		INSERT INTO fhe_values (handle, kind, value_u64, value_bool)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (handle) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, v.Handle[:], int16(v.Kind), u64ToDB(v.Uint64), v.Bool)
	if err != nil {
		return fmt.Errorf("postgres: insert fhe value %s: %w", v.Handle.Hex(), err)
	}
	return nil
}

// SaveGrant records a decryption grant.
func (s *FHEStore) SaveGrant(ctx context.Context, g fhe.StoredGrant) error {
	const query = `
		INSERT INTO fhe_grants (handle, grantee)
		VALUES ($1, $2)
		ON CONFLICT (handle, grantee) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, g.Handle[:], g.Grantee.Bytes())
	if err != nil {
		return fmt.Errorf("postgres: insert fhe grant %s/%s: %w", g.Handle.Hex(), g.Grantee.Hex(), err)
	}
	return nil
}

// LoadValues returns every persisted ciphertext.
func (s *FHEStore) LoadValues(ctx context.Context) ([]fhe.StoredValue, error) {
	const query = `SELECT handle, kind, value_u64, value_bool FROM fhe_values`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fhe values: %w", err)
	}
	defer rows.Close()

	var out []fhe.StoredValue
	for rows.Next() {
		var (
			handle []byte
			kind   int16
			u64    int64
			b      bool
		)
		if err := rows.Scan(&handle, &kind, &u64, &b); err != nil {
			return nil, fmt.Errorf("postgres: scan fhe value: %w", err)
		}
		var v fhe.StoredValue
		copy(v.Handle[:], handle)
		v.Kind = uint8(kind)
		v.Uint64 = u64FromDB(u64)
		v.Bool = b
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fhe values: %w", err)
	}
	return out, nil
}

// LoadGrants returns every persisted decryption grant.
func (s *FHEStore) LoadGrants(ctx context.Context) ([]fhe.StoredGrant, error) {
	const query = `SELECT handle, grantee FROM fhe_grants`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fhe grants: %w", err)
	}
	defer rows.Close()

	var out []fhe.StoredGrant
	for rows.Next() {
		var handle, grantee []byte
		if err := rows.Scan(&handle, &grantee); err != nil {
			return nil, fmt.Errorf("postgres: scan fhe grant: %w", err)
		}
		var g fhe.StoredGrant
		copy(g.Handle[:], handle)
		g.Grantee = common.BytesToAddress(grantee)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fhe grants: %w", err)
	}
	return out, nil
}

var _ fhe.Store = (*FHEStore)(nil)
