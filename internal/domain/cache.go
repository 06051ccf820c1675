package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the most recently posted price per
// asset. It is a read-side convenience; the PriceStore remains authoritative.
type PriceCache interface {
	SetLatest(ctx context.Context, rec PriceRecord) error
	GetLatest(ctx context.Context, asset Asset) (PriceRecord, error)
}

// RateLimiter provides distributed rate limiting for the public API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking, used to keep the day-close
// archiver single-flight across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// NonceRegistry records one-time request nonces so a captured signature
// cannot be replayed inside the timestamp skew window. Register reports
// whether the nonce was fresh; it must hold the nonce for at least ttl.
type NonceRegistry interface {
	Register(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for ledger events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
