package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Stage is a single aggregation pipeline stage, e.g. {"$match": {...}}.
type Stage = map[string]any

// Document is one result row of a pipeline execution. Values are JSON
// scalars, nested mappings, or ISO-8601 timestamp strings.
type Document = map[string]any

// paginationStages are stripped before hashing: they change which slice of
// the result set is returned, not the result set itself. Pagination is
// applied by the call-site after the cache read.
var paginationStages = map[string]struct{}{
	"$skip":  {},
	"$limit": {},
}

// MetadataKey returns the device metadata key for a device id.
func MetadataKey(deviceID string) string {
	return TierDeviceMetadata.Prefix() + ":" + deviceID
}

// ChunkKey returns the aggregated chunk key for a
// (data type, device, time bucket, resolution) tuple.
func ChunkKey(dataType, deviceID, timeBucket string, resolution int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", TierAggregatedChunk.Prefix(), dataType, deviceID, timeBucket, resolution)
}

// ChunkPattern returns the glob pattern matching every aggregated chunk
// key for a device, across all data types, buckets and resolutions.
func ChunkPattern(deviceID string) string {
	return TierAggregatedChunk.Prefix() + ":*:" + deviceID + ":*"
}

// PipelineKey derives a content-addressed key for an aggregation pipeline.
//
// The pipeline is first normalized by dropping pagination stages ($skip,
// $limit); stages that filter or group data stay in, since they change the
// result set. The normalized pipeline is serialized to canonical JSON
// (encoding/json sorts object keys, so identical logical pipelines produce
// byte-identical input) and hashed with SHA-256. Two pipelines differing
// only in pagination map to the same key; pipelines differing in any
// filter, grouping, device id or time range map to different keys.
func PipelineKey(pipeline []Stage) (string, error) {
	core := make([]Stage, 0, len(pipeline))
	for _, stage := range pipeline {
		if isPaginationStage(stage) {
			continue
		}
		core = append(core, stage)
	}

	canonical, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("serialize pipeline: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return TierPipelineResult.Prefix() + ":" + hex.EncodeToString(sum[:]), nil
}

func isPaginationStage(stage Stage) bool {
	for op := range stage {
		if _, ok := paginationStages[op]; ok {
			return true
		}
	}
	return false
}

// TimeBucket returns the bucket label used in aggregated chunk keys.
// High-resolution data buckets hourly, medium daily, low weekly, so that
// a chunk covers many queries at its resolution without growing unbounded.
func TimeBucket(ts time.Time, resolutionMinutes int) string {
	switch {
	case resolutionMinutes <= 60:
		return ts.Format("2006-01-02-15")
	case resolutionMinutes <= 24*60:
		return ts.Format("2006-01-02")
	default:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
}
