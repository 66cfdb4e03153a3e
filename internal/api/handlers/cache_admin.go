package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/opensensor/sensorcache/internal/apierr"
	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/logger"
)

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	store cache.Store
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(store cache.Store) *CacheAdminHandler {
	return &CacheAdminHandler{store: store}
}

// GetStats returns current cache backend statistics.
// GET /admin/cache/stats
func (h *CacheAdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          stats.Status,
		"key_count":       stats.KeyCount,
		"backend_version": stats.BackendVersion,
		"used_memory":     stats.UsedMemory,
		"hits":            stats.Hits,
		"misses":          stats.Misses,
		"hit_rate":        stats.HitRate(),
	})
}

// Clear removes every cached entry.
// POST /admin/cache/clear
func (h *CacheAdminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	deleted := h.store.DeleteByPattern(r.Context(), "*")
	logger.InfoContext(r.Context(), "Cache cleared by admin", "deleted", deleted)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"deleted": deleted,
	})
}

// Invalidate removes cached entries matching a glob pattern.
// POST /admin/cache/invalidate with body {"pattern": "agg:temp:*"}
func (h *CacheAdminHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if body.Pattern == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("pattern"))
		return
	}

	deleted := h.store.DeleteByPattern(r.Context(), body.Pattern)
	logger.InfoContext(r.Context(), "Cache invalidated by admin", "pattern", body.Pattern, "deleted", deleted)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"pattern": body.Pattern,
		"deleted": deleted,
	})
}
