package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/cipherbet/oracled/internal/domain"
)

// MemoryNonces is an in-process domain.NonceRegistry for deployments without
// Redis. It covers a single instance only; replicas need the shared registry.
type MemoryNonces struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryNonces creates an empty registry.
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{seen: make(map[string]time.Time)}
}

// Register claims nonce until ttl elapses, sweeping expired entries as it
// goes. It returns false for a nonce that is still claimed.
func (m *MemoryNonces) Register(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for n, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, n)
		}
	}

	if exp, ok := m.seen[nonce]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[nonce] = now.Add(ttl)
	return true, nil
}

// Compile-time interface check.
var _ domain.NonceRegistry = (*MemoryNonces)(nil)
