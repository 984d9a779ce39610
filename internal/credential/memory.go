package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the TokenSet in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	ts *TokenSet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored set.
func (s *MemoryStore) Save(_ context.Context, ts TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ts
	s.ts = &cp
	return nil
}

// Load returns a copy of the stored set.
func (s *MemoryStore) Load(_ context.Context) (*TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ts == nil {
		return nil, false
	}
	cp := *s.ts
	return &cp, true
}
