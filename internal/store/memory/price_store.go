// Package memory implements the domain store interfaces with in-process
// maps. It backs ledgers that run without PostgreSQL and every engine test.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cipherbet/oracled/internal/domain"
)

type priceKey struct {
	asset domain.Asset
	day   domain.DayIndex
}

// PriceStore implements domain.PriceStore in memory.
type PriceStore struct {
	mu      sync.RWMutex
	records map[priceKey]domain.PriceRecord
}

// NewPriceStore creates an empty PriceStore.
func NewPriceStore() *PriceStore {
	return &PriceStore{records: make(map[priceKey]domain.PriceRecord)}
}

// Create appends a price record, rejecting duplicates for the same key.
func (s *PriceStore) Create(_ context.Context, rec domain.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := priceKey{asset: rec.Asset, day: rec.Day}
	if _, ok := s.records[k]; ok {
		return domain.ErrPriceAlreadyPosted
	}
	s.records[k] = rec
	return nil
}

// Get returns the record for (asset, day), reporting absence via ok=false.
func (s *PriceStore) Get(_ context.Context, asset domain.Asset, day domain.DayIndex) (domain.PriceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[priceKey{asset: asset, day: day}]
	return rec, ok, nil
}

// ListByDay returns the records posted for a day, ordered by asset.
func (s *PriceStore) ListByDay(_ context.Context, day domain.DayIndex) ([]domain.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PriceRecord
	for k, rec := range s.records {
		if k.day == day {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

var _ domain.PriceStore = (*PriceStore)(nil)
