package store

import (
	"context"
	"slices"
	"sync"

	"github.com/DimBertolami/latestbot/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	trades []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(latest(s.trades, limit)), nil
}

func (s *MemoryStore) ClearTrades(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = nil
	return nil
}
