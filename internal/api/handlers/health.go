package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/opensensor/sensorcache/internal/cache"
)

// Health reports liveness plus the cache backend's reachability. The
// service stays healthy when the cache is down; reads degrade to the
// source store instead.
func Health(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheStatus := "connected"
		if err := store.Ping(r.Context()); err != nil {
			cacheStatus = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"cache":  cacheStatus,
		})
	}
}
