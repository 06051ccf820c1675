package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cipherbet/oracled/internal/domain"
)

// NonceRegistry implements domain.NonceRegistry with a SETNX-guarded key per
// nonce, shared across replicas so a signature captured on one instance
// cannot be replayed against another.
type NonceRegistry struct {
	rdb *redis.Client
}

// NewNonceRegistry creates a NonceRegistry backed by the given Client.
func NewNonceRegistry(c *Client) *NonceRegistry {
	return &NonceRegistry{rdb: c.Underlying()}
}

func nonceKey(nonce string) string {
	return "nonce:" + nonce
}

// Register claims the nonce for ttl. It returns false when the nonce was
// already claimed.
func (r *NonceRegistry) Register(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, nonceKey(nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: register nonce: %w", err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.NonceRegistry = (*NonceRegistry)(nil)
