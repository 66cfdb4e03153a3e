package cache

import (
	"context"
	"encoding/json"

	"github.com/opensensor/sensorcache/internal/metrics"
)

// ChunkCache stores pre-aggregated data chunks keyed by
// (data type, device, time bucket, resolution). Because the key embeds
// the device id, the write-path invalidator can purge a device's chunks
// by prefix, which the pipeline tier cannot do.
type ChunkCache struct {
	store Store
	guard *SizeGuard
}

// NewChunkCache creates a chunk cache with the aggregated chunk tier TTL.
func NewChunkCache(store Store, guard *SizeGuard) *ChunkCache {
	return &ChunkCache{store: store, guard: guard}
}

// Get returns the cached chunk for the tuple, if present.
func (c *ChunkCache) Get(ctx context.Context, dataType, deviceID, timeBucket string, resolution int) ([]Document, bool) {
	key := ChunkKey(dataType, deviceID, timeBucket, resolution)
	raw, ok := c.store.Get(ctx, key)
	if !ok {
		metrics.CacheMisses.WithLabelValues(TierAggregatedChunk.String()).Inc()
		return nil, false
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		metrics.CacheMisses.WithLabelValues(TierAggregatedChunk.String()).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(TierAggregatedChunk.String()).Inc()
	return docs, true
}

// Set caches a chunk for the tuple, subject to admission control.
func (c *ChunkCache) Set(ctx context.Context, dataType, deviceID, timeBucket string, resolution int, docs []Document) bool {
	raw, err := json.Marshal(docs)
	if err != nil {
		return false
	}
	if !c.guard.Admit(TierAggregatedChunk, len(raw)) {
		return false
	}
	key := ChunkKey(dataType, deviceID, timeBucket, resolution)
	return c.store.Set(ctx, key, raw, TierAggregatedChunk.DefaultTTL())
}
