package resultcache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultLRUSize = 10000

type lruBackend interface {
	Add(key string, value Entry) bool
	Get(key string) (Entry, bool)
	Len() int
}

// LRUStore bounds the number of entries and optionally expires them. A
// selection of an evicted result is handled like any other cache miss.
type LRUStore struct {
	cache lruBackend
}

func NewLRUStore(size int, ttl time.Duration) (*LRUStore, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	if ttl > 0 {
		return &LRUStore{cache: expirable.NewLRU[string, Entry](size, nil, ttl)}, nil
	}
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("resultcache: create lru: %w", err)
	}
	return &LRUStore{cache: cache}, nil
}

func (s *LRUStore) Put(_ context.Context, resultID string, entry Entry) error {
	if err := validateResultID(resultID); err != nil {
		return err
	}
	s.cache.Add(resultID, entry)
	return nil
}

func (s *LRUStore) Get(_ context.Context, resultID string) (Entry, bool, error) {
	entry, ok := s.cache.Get(resultID)
	return entry, ok, nil
}

func (s *LRUStore) Len() int {
	return s.cache.Len()
}

func (s *LRUStore) Close() error { return nil }
