package cache

import (
	"context"
	"fmt"
	"time"
)

// Store defines the interface for the shared cache backend.
//
// All operations degrade rather than fail: a backend that is down, timing
// out, or returning garbage manifests as a miss (Get) or a no-op (Set,
// Delete). Callers are written as if the cache always exists. Ping and
// Stats are the only operations that surface backend status, for the
// health and stats endpoints.
type Store interface {
	// Get retrieves a value by key. Returns the value and true on a hit,
	// nil and false on a miss or any backend failure.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. Returns false if the value
	// could not be stored.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool

	// Delete removes the given keys and returns how many were removed.
	Delete(ctx context.Context, keys ...string) int

	// DeleteByPattern removes all keys matching a glob-style pattern
	// (e.g. "agg:*:outdoor-1:*") and returns how many were removed.
	DeleteByPattern(ctx context.Context, pattern string) int

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Stats returns backend-level cache statistics.
	Stats(ctx context.Context) Stats
}

// Stats represents cache backend statistics as exposed by /admin/cache/stats.
type Stats struct {
	Status         string `json:"status"` // "connected" or "disconnected"
	KeyCount       int64  `json:"key_count"`
	BackendVersion string `json:"backend_version"`
	UsedMemory     string `json:"used_memory"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
}

// HitRate returns the hit rate as a percentage string, e.g. "93.75%".
func (s Stats) HitRate() string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(s.Hits)/float64(total)*100)
}
