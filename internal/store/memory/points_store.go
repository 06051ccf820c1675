package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// PointsStore implements domain.PointsStore in memory.
type PointsStore struct {
	mu       sync.RWMutex
	accounts map[common.Address]domain.PointsAccount
}

// NewPointsStore creates an empty PointsStore.
func NewPointsStore() *PointsStore {
	return &PointsStore{accounts: make(map[common.Address]domain.PointsAccount)}
}

// Get returns the account for user, reporting absence via ok=false.
func (s *PointsStore) Get(_ context.Context, user common.Address) (domain.PointsAccount, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[user]
	return acct, ok, nil
}

// Put creates or replaces the account.
func (s *PointsStore) Put(_ context.Context, acct domain.PointsAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.User] = acct
	return nil
}

var _ domain.PointsStore = (*PointsStore)(nil)
