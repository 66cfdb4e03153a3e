package cache

import (
	"context"
	"log/slog"

	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
	"github.com/opensensor/sensorcache/internal/tracing"
)

// Invalidator purges cache entries made stale by a write to the source
// store. It runs synchronously after the write is durably acknowledged,
// so a racing read cannot repopulate the cache with pre-write data
// before the purge.
type Invalidator struct {
	store Store
	log   *slog.Logger
}

// NewInvalidator creates an invalidator over the given store.
func NewInvalidator(store Store) *Invalidator {
	return &Invalidator{
		store: store,
		log:   logger.WithComponent("cache"),
	}
}

// OnDataWritten removes the device's metadata key and every aggregated
// chunk key carrying the device id. Pipeline-result entries carry no
// device identity in their key and are left to expire by TTL. Returns the
// number of keys removed; backend failures leave stale entries behind
// (bounded by tier TTLs) but never fail the write path.
func (iv *Invalidator) OnDataWritten(ctx context.Context, deviceID string) int {
	ctx, span := tracing.StartCacheSpan(ctx, "invalidate", TierAggregatedChunk.String())
	defer span.End()

	deleted := iv.store.Delete(ctx, MetadataKey(deviceID))
	deleted += iv.store.DeleteByPattern(ctx, ChunkPattern(deviceID))

	metrics.CacheInvalidations.Inc()
	metrics.CacheKeysInvalidated.Add(float64(deleted))

	iv.log.Debug("invalidated device cache entries",
		"device_id", deviceID,
		"deleted", deleted,
	)
	return deleted
}
