package cache

import "time"

// Tier is a category of cached entity with its own key namespace and TTL.
// Keys never cross tiers: every key carries exactly one tier prefix.
type Tier int

const (
	// TierDeviceMetadata holds resolved device chains (device id set plus
	// display name). Long-lived; invalidated explicitly on writes.
	TierDeviceMetadata Tier = iota

	// TierPipelineResult holds the output rows of aggregation pipelines,
	// keyed by a content hash of the logical pipeline. No device identity
	// in the key, so freshness relies purely on the short TTL.
	TierPipelineResult

	// TierAggregatedChunk holds pre-aggregated data for a
	// (data type, device, time bucket, resolution) tuple. The key embeds
	// the device id, which makes prefix invalidation possible.
	TierAggregatedChunk
)

// Default TTLs per tier. Call-sites may override the pipeline TTL.
const (
	DeviceMetadataTTL  = 24 * time.Hour
	PipelineResultTTL  = 15 * time.Minute
	AggregatedChunkTTL = 30 * time.Minute
)

// Prefix returns the key namespace prefix for the tier, without a
// trailing separator.
func (t Tier) Prefix() string {
	switch t {
	case TierDeviceMetadata:
		return "device_meta"
	case TierPipelineResult:
		return "pipeline"
	case TierAggregatedChunk:
		return "agg"
	default:
		return "unknown"
	}
}

// DefaultTTL returns the fixed TTL for the tier.
func (t Tier) DefaultTTL() time.Duration {
	switch t {
	case TierDeviceMetadata:
		return DeviceMetadataTTL
	case TierPipelineResult:
		return PipelineResultTTL
	case TierAggregatedChunk:
		return AggregatedChunkTTL
	default:
		return PipelineResultTTL
	}
}

func (t Tier) String() string { return t.Prefix() }
