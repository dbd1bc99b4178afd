package resultcache

import (
	"context"
	"sync"
)

// MemoryStore keeps every entry for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, resultID string, entry Entry) error {
	if err := validateResultID(resultID); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[resultID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, resultID string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[resultID]
	s.mu.RUnlock()
	return entry, ok, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
