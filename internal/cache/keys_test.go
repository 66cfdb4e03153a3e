package cache

import (
	"strings"
	"testing"
	"time"
)

func TestMetadataKey(t *testing.T) {
	if got := MetadataKey("outdoor-1"); got != "device_meta:outdoor-1" {
		t.Errorf("MetadataKey = %q, want %q", got, "device_meta:outdoor-1")
	}
}

func TestChunkKey(t *testing.T) {
	got := ChunkKey("temp", "outdoor-1", "2024-01-15-12", 30)
	want := "agg:temp:outdoor-1:2024-01-15-12:30"
	if got != want {
		t.Errorf("ChunkKey = %q, want %q", got, want)
	}
}

func TestChunkPattern(t *testing.T) {
	if got := ChunkPattern("outdoor-1"); got != "agg:*:outdoor-1:*" {
		t.Errorf("ChunkPattern = %q, want %q", got, "agg:*:outdoor-1:*")
	}
}

func TestPipelineKeyIgnoresPagination(t *testing.T) {
	base := samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 10, 50)
	shifted := samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 20, 50)
	unpaged := samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, -1, -1)

	k1, err := PipelineKey(base)
	if err != nil {
		t.Fatalf("PipelineKey failed: %v", err)
	}
	k2, err := PipelineKey(shifted)
	if err != nil {
		t.Fatalf("PipelineKey failed: %v", err)
	}
	k3, err := PipelineKey(unpaged)
	if err != nil {
		t.Fatalf("PipelineKey failed: %v", err)
	}

	if k1 != k2 {
		t.Errorf("Pipelines differing only in $skip produced different keys: %q vs %q", k1, k2)
	}
	if k1 != k3 {
		t.Errorf("Paginated and unpaginated pipelines produced different keys: %q vs %q", k1, k3)
	}
}

func TestPipelineKeySensitivity(t *testing.T) {
	base := samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 0, 50)

	variants := map[string][]Stage{
		"different device":     samplePipeline("outdoor-2", "2024-01-01", "2024-01-02", 30, 0, 50),
		"different start":      samplePipeline("outdoor-1", "2024-01-01T06:00", "2024-01-02", 30, 0, 50),
		"different end":        samplePipeline("outdoor-1", "2024-01-01", "2024-01-03", 30, 0, 50),
		"different resolution": samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 60, 0, 50),
		"extra filter": append(
			samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 0, 50),
			Stage{"$match": map[string]any{"metadata.unit": "C"}},
		),
	}

	baseKey, err := PipelineKey(base)
	if err != nil {
		t.Fatalf("PipelineKey failed: %v", err)
	}

	for name, variant := range variants {
		key, err := PipelineKey(variant)
		if err != nil {
			t.Fatalf("PipelineKey(%s) failed: %v", name, err)
		}
		if key == baseKey {
			t.Errorf("Variant %q produced the same key as the base pipeline", name)
		}
	}
}

func TestPipelineKeyDeterministic(t *testing.T) {
	// Identical logical pipelines, constructed independently, must hash
	// identically regardless of map iteration order.
	for i := 0; i < 20; i++ {
		a, err := PipelineKey(samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 0, 50))
		if err != nil {
			t.Fatalf("PipelineKey failed: %v", err)
		}
		b, err := PipelineKey(samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 0, 50))
		if err != nil {
			t.Fatalf("PipelineKey failed: %v", err)
		}
		if a != b {
			t.Fatalf("Identical pipelines produced different keys: %q vs %q", a, b)
		}
	}
}

func TestPipelineKeyFormat(t *testing.T) {
	key, err := PipelineKey(samplePipeline("outdoor-1", "2024-01-01", "2024-01-02", 30, 0, 50))
	if err != nil {
		t.Fatalf("PipelineKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "pipeline:") {
		t.Errorf("Pipeline key %q missing tier prefix", key)
	}
	// SHA-256 hex digest: 64 characters after the prefix.
	if suffix := strings.TrimPrefix(key, "pipeline:"); len(suffix) != 64 {
		t.Errorf("Pipeline key suffix has length %d, want 64", len(suffix))
	}
}

func TestTimeBucket(t *testing.T) {
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		resolution int
		want       string
	}{
		{30, "2024-01-15-14"},   // high resolution buckets hourly
		{60, "2024-01-15-14"},   // boundary stays hourly
		{360, "2024-01-15"},     // medium resolution buckets daily
		{1440, "2024-01-15"},    // boundary stays daily
		{2880, "2024-W03"},      // low resolution buckets weekly
	}

	for _, tt := range tests {
		if got := TimeBucket(ts, tt.resolution); got != tt.want {
			t.Errorf("TimeBucket(%d) = %q, want %q", tt.resolution, got, tt.want)
		}
	}
}

func TestTierPrefixesDisjoint(t *testing.T) {
	tiers := []Tier{TierDeviceMetadata, TierPipelineResult, TierAggregatedChunk}
	seen := make(map[string]bool)
	for _, tier := range tiers {
		prefix := tier.Prefix()
		if seen[prefix] {
			t.Errorf("Tier prefix %q is shared between tiers", prefix)
		}
		seen[prefix] = true
	}
}
