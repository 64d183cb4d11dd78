package store

import (
	"context"
	"sync"

	"github.com/Andhanc/minecalc/internal/pricing"
)

// MemoryStore keeps quotes in process memory. Used by tests and one-shot CLI
// runs where nothing should persist.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]pricing.Quote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: make(map[string]pricing.Quote)}
}

func (s *MemoryStore) Load(context.Context) (map[string]pricing.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]pricing.Quote, len(s.quotes))
	for symbol, quote := range s.quotes {
		out[symbol] = quote
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, quotes map[string]pricing.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, quote := range quotes {
		s.quotes[symbol] = quote
	}
	return nil
}
