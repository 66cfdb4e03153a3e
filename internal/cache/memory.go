package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and as the fallback
// when no Redis URL is configured. It implements the same TTL and
// glob-pattern semantics as the Redis backend but shares nothing across
// replicas, so it is only suitable for single-instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]memoryEntry
	hits   uint64
	misses uint64

	// now is injectable so TTL expiry can be tested with a simulated clock.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// SetClock replaces the store's time source; for use in tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.data, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return entry.value, true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = memoryEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return true
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if _, ok := s.data[key]; ok {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted
}

func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key := range s.data {
		// Keys contain no '/', so path.Match gives Redis-style glob
		// semantics: '*' crosses ':' boundaries.
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Stats(context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Purge expired entries so the key count reflects live keys.
	now := s.now()
	for key, entry := range s.data {
		if !now.Before(entry.expiresAt) {
			delete(s.data, key)
		}
	}

	return Stats{
		Status:         "connected",
		KeyCount:       int64(len(s.data)),
		BackendVersion: "in-process",
		Hits:           s.hits,
		Misses:         s.misses,
	}
}
