package cache

import (
	"log/slog"

	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
)

// DefaultMaxEntryBytes is the admission ceiling: one cache entry may use
// at most 1 MiB in the shared backend.
const DefaultMaxEntryBytes = 1 << 20

// SizeGuard decides whether a computed result may enter the cache.
// Rejection only suppresses caching; the result is still returned to the
// caller. The check runs after the source operation succeeds and before
// the store write.
type SizeGuard struct {
	maxBytes int
	log      *slog.Logger
}

// NewSizeGuard creates a size guard with the given ceiling in bytes.
// A non-positive ceiling falls back to DefaultMaxEntryBytes.
func NewSizeGuard(maxBytes int) *SizeGuard {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEntryBytes
	}
	return &SizeGuard{
		maxBytes: maxBytes,
		log:      logger.WithComponent("cache"),
	}
}

// Admit reports whether a result of the given serialized size may be
// cached. A result at exactly the ceiling is admitted.
func (g *SizeGuard) Admit(tier Tier, serializedSize int) bool {
	if serializedSize <= g.maxBytes {
		return true
	}
	metrics.CacheAdmissionRejected.WithLabelValues(tier.String()).Inc()
	g.log.Debug("admission rejected, result too large",
		"tier", tier.String(),
		"size_bytes", serializedSize,
		"max_bytes", g.maxBytes,
	)
	return false
}
