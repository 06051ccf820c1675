package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherbet/oracled/internal/domain"
)

type betKey struct {
	user  common.Address
	asset domain.Asset
	day   domain.DayIndex
}

// BetStore implements domain.BetStore in memory.
type BetStore struct {
	mu   sync.RWMutex
	bets map[betKey]domain.Bet
}

// NewBetStore creates an empty BetStore.
func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[betKey]domain.Bet)}
}

// Create records a bet, rejecting duplicates for the same key.
func (s *BetStore) Create(_ context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := betKey{user: bet.User, asset: bet.Asset, day: bet.Day}
	if _, ok := s.bets[k]; ok {
		return domain.ErrBetAlreadyExists
	}
	s.bets[k] = bet
	return nil
}

// Get returns the bet for the key, reporting absence via ok=false.
func (s *BetStore) Get(_ context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) (domain.Bet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bet, ok := s.bets[betKey{user: user, asset: asset, day: day}]
	return bet, ok, nil
}

// MarkClaimed flips the claimed flag for the key.
func (s *BetStore) MarkClaimed(_ context.Context, user common.Address, asset domain.Asset, day domain.DayIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := betKey{user: user, asset: asset, day: day}
	bet, ok := s.bets[k]
	if !ok {
		return domain.ErrBetNotFound
	}
	bet.Claimed = true
	s.bets[k] = bet
	return nil
}

// ListClaimedByDay returns all settled bets for a target day, ordered by
// asset then user for stable output.
func (s *BetStore) ListClaimedByDay(_ context.Context, day domain.DayIndex) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for k, bet := range s.bets {
		if k.day == day && bet.Claimed {
			out = append(out, bet)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return out[i].User.Hex() < out[j].User.Hex()
	})
	return out, nil
}

var _ domain.BetStore = (*BetStore)(nil)
