package cache

import (
	"context"
	"strings"
	"testing"
)

func TestChunkCacheRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	chunks := NewChunkCache(store, NewSizeGuard(0))
	ctx := context.Background()

	docs := []Document{
		{"timestamp": "2024-01-15T12:00:00Z", "temp": 21.5, "temp_unit": "C"},
		{"timestamp": "2024-01-15T12:30:00Z", "temp": 21.9, "temp_unit": "C"},
	}

	if _, ok := chunks.Get(ctx, "temp", "outdoor-1", "2024-01-15-12", 30); ok {
		t.Fatal("Get returned a hit before any Set")
	}

	if !chunks.Set(ctx, "temp", "outdoor-1", "2024-01-15-12", 30, docs) {
		t.Fatal("Set rejected a small chunk")
	}

	got, ok := chunks.Get(ctx, "temp", "outdoor-1", "2024-01-15-12", 30)
	if !ok {
		t.Fatal("Get missed after Set")
	}
	if len(got) != len(docs) {
		t.Fatalf("Get returned %d documents, want %d", len(got), len(docs))
	}
	if got[1]["temp"] != 21.9 {
		t.Errorf("Second document temp = %v, want 21.9", got[1]["temp"])
	}

	// The same device at a different resolution is a distinct entry.
	if _, ok := chunks.Get(ctx, "temp", "outdoor-1", "2024-01-15-12", 60); ok {
		t.Error("Get hit across resolutions; keys must separate them")
	}
}

func TestChunkCacheAdmission(t *testing.T) {
	store := NewMemoryStore()
	chunks := NewChunkCache(store, NewSizeGuard(64))
	ctx := context.Background()

	oversized := []Document{
		{"timestamp": "2024-01-15T12:00:00Z", "note": strings.Repeat("x", 256)},
	}
	if chunks.Set(ctx, "temp", "outdoor-1", "2024-01-15-12", 30, oversized) {
		t.Error("Set admitted a chunk over the size ceiling")
	}
	if _, ok := chunks.Get(ctx, "temp", "outdoor-1", "2024-01-15-12", 30); ok {
		t.Error("Rejected chunk was still stored")
	}
}

func TestChunkCacheInvalidatedOnWrite(t *testing.T) {
	store := NewMemoryStore()
	chunks := NewChunkCache(store, NewSizeGuard(0))
	inv := NewInvalidator(store)
	ctx := context.Background()

	docs := []Document{{"timestamp": "2024-01-15T12:00:00Z", "rh": 58.2}}
	chunks.Set(ctx, "rh", "outdoor-1", "2024-01-15-12", 30, docs)
	chunks.Set(ctx, "rh", "outdoor-2", "2024-01-15-12", 30, docs)

	inv.OnDataWritten(ctx, "outdoor-1")

	if _, ok := chunks.Get(ctx, "rh", "outdoor-1", "2024-01-15-12", 30); ok {
		t.Error("Written device's chunk survived invalidation")
	}
	if _, ok := chunks.Get(ctx, "rh", "outdoor-2", "2024-01-15-12", 30); !ok {
		t.Error("Neighbor device's chunk was wrongly invalidated")
	}
}

func TestChunkCacheDegradesOnBackendFailure(t *testing.T) {
	chunks := NewChunkCache(failingStore{}, NewSizeGuard(0))
	ctx := context.Background()

	if _, ok := chunks.Get(ctx, "temp", "outdoor-1", "2024-01-15-12", 30); ok {
		t.Error("Get reported a hit with the backend down")
	}
	if chunks.Set(ctx, "temp", "outdoor-1", "2024-01-15-12", 30, []Document{{"temp": 20.0}}) {
		t.Error("Set reported success with the backend down")
	}
}
