package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestRedisStoreIntegration exercises the real Redis backend. It is
// skipped unless REDIS_URL points at a disposable instance.
func TestRedisStoreIntegration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping Redis integration test")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{
		URL:       url,
		Namespace: "sensorcache-test",
		Timeout:   500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	defer store.Close()
	defer store.DeleteByPattern(ctx, "*")

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	t.Run("set and get", func(t *testing.T) {
		if !store.Set(ctx, "device_meta:it-1", []byte(`{"device_name":"it"}`), time.Minute) {
			t.Fatal("Set failed")
		}
		val, found := store.Get(ctx, "device_meta:it-1")
		if !found {
			t.Fatal("Expected to find cached value")
		}
		if string(val) != `{"device_name":"it"}` {
			t.Errorf("Got %q", val)
		}
	})

	t.Run("ttl expiry", func(t *testing.T) {
		store.Set(ctx, "pipeline:it-expiring", []byte("x"), 200*time.Millisecond)
		if _, found := store.Get(ctx, "pipeline:it-expiring"); !found {
			t.Error("Expected value before expiry")
		}
		time.Sleep(300 * time.Millisecond)
		if _, found := store.Get(ctx, "pipeline:it-expiring"); found {
			t.Error("Expected value to expire")
		}
	})

	t.Run("pattern delete", func(t *testing.T) {
		store.Set(ctx, "agg:temp:it-dev:2024-01-15-12:30", []byte("x"), time.Minute)
		store.Set(ctx, "agg:rh:it-dev:2024-01-15:60", []byte("x"), time.Minute)
		store.Set(ctx, "agg:temp:other:2024-01-15-12:30", []byte("x"), time.Minute)

		if deleted := store.DeleteByPattern(ctx, ChunkPattern("it-dev")); deleted != 2 {
			t.Errorf("DeleteByPattern removed %d keys, want 2", deleted)
		}
		if _, found := store.Get(ctx, "agg:temp:other:2024-01-15-12:30"); !found {
			t.Error("Other device's chunk should survive")
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats := store.Stats(ctx)
		if stats.Status != "connected" {
			t.Errorf("Status = %q, want connected", stats.Status)
		}
		if stats.BackendVersion == "" {
			t.Error("Expected a backend version from INFO")
		}
	})
}
