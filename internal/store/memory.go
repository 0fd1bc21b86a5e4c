package store

import (
	"context"
	"sync"

	"github.com/custodia/marketplace-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	trades []model.TradeRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertTrade(_ context.Context, rec *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *rec)
	return nil
}

func (s *MemoryStore) TradesByAsset(_ context.Context, assetID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, r := range s.trades {
		if r.AssetID == assetID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) TradesByActor(_ context.Context, actor model.Address) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, r := range s.trades {
		if r.Actor == actor {
			result = append(result, r)
		}
	}
	return result, nil
}
