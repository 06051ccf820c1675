package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

// StateStore implements domain.StateStore in memory.
type StateStore struct {
	mu    sync.RWMutex
	state domain.LedgerState
}

// NewStateStore creates a StateStore with the given initial owner. The
// deployer starts as both owner and oracle, matching first-boot behavior.
func NewStateStore(owner common.Address) *StateStore {
	return &StateStore{state: domain.LedgerState{Owner: owner, Oracle: owner}}
}

// Get returns a copy of the current ledger state.
func (s *StateStore) Get(_ context.Context) (domain.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// SetOwner replaces the owner role.
func (s *StateStore) SetOwner(_ context.Context, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Owner = owner
	return nil
}

// SetOracle replaces the oracle role.
func (s *StateStore) SetOracle(_ context.Context, oracle common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Oracle = oracle
	return nil
}

// AddStake credits the stake pool.
func (s *StateStore) AddStake(_ context.Context, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StakePool += amount
	return nil
}

// SubStake debits the stake pool, rejecting overdrafts.
func (s *StateStore) SubStake(_ context.Context, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount > s.state.StakePool {
		return domain.ErrNothingToWithdraw
	}
	s.state.StakePool -= amount
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
