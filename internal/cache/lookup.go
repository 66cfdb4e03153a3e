package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
)

// DeviceResolver is the source-of-truth collaborator for device metadata.
// Implementations resolve a device id to the full chain of device ids
// sharing its registration plus the display name.
type DeviceResolver interface {
	Resolve(ctx context.Context, deviceID string) (deviceIDs []string, deviceName string, err error)
}

// DeviceMetadataRecord is the cached shape of a resolved device.
type DeviceMetadataRecord struct {
	DeviceIDs  []string  `json:"device_ids"`
	DeviceName string    `json:"device_name"`
	CachedAt   time.Time `json:"cached_at"`
}

// Lookup wraps the device resolver with the metadata cache tier.
// Resolver errors (including not-found) pass through unchanged; cache
// failures only ever degrade to calling the resolver directly.
type Lookup struct {
	store    Store
	resolver DeviceResolver
	guard    *SizeGuard
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time
	log      *slog.Logger
}

// NewLookup creates a cache-aware device lookup with the metadata tier TTL.
func NewLookup(store Store, resolver DeviceResolver, guard *SizeGuard) *Lookup {
	return &Lookup{
		store:    store,
		resolver: resolver,
		guard:    guard,
		ttl:      TierDeviceMetadata.DefaultTTL(),
		now:      time.Now,
		log:      logger.WithComponent("cache"),
	}
}

// SetTTL overrides the metadata tier default, e.g. from configuration.
func (l *Lookup) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		l.ttl = ttl
	}
}

// Lookup returns the metadata record for a device, from cache when
// possible. Concurrent misses for the same device are collapsed into a
// single resolver call; distinct devices never block each other.
func (l *Lookup) Lookup(ctx context.Context, deviceID string) (DeviceMetadataRecord, error) {
	key := MetadataKey(deviceID)

	if raw, ok := l.store.Get(ctx, key); ok {
		var record DeviceMetadataRecord
		if err := json.Unmarshal(raw, &record); err == nil {
			metrics.CacheHits.WithLabelValues(TierDeviceMetadata.String()).Inc()
			return record, nil
		}
		// Undecodable entry: treat as a miss and let the rewrite below
		// replace it.
		l.log.Warn("discarding undecodable metadata entry", "key", key)
	}
	metrics.CacheMisses.WithLabelValues(TierDeviceMetadata.String()).Inc()

	result, err, _ := l.group.Do(key, func() (any, error) {
		ids, name, err := l.resolver.Resolve(ctx, deviceID)
		if err != nil {
			return DeviceMetadataRecord{}, err
		}

		record := DeviceMetadataRecord{
			DeviceIDs:  ids,
			DeviceName: name,
			CachedAt:   l.now().UTC(),
		}

		if raw, err := json.Marshal(record); err == nil && l.guard.Admit(TierDeviceMetadata, len(raw)) {
			l.store.Set(ctx, key, raw, l.ttl)
		}
		return record, nil
	})
	if err != nil {
		return DeviceMetadataRecord{}, err
	}
	return result.(DeviceMetadataRecord), nil
}
