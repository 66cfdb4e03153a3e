package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
)

// StatsCollector periodically polls backend statistics into Prometheus
// gauges so that dashboards see backend health without hitting the admin
// endpoint.
type StatsCollector struct {
	store    Store
	interval time.Duration
	stop     chan struct{}
	log      *slog.Logger
}

// NewStatsCollector creates a collector polling at the given interval.
func NewStatsCollector(store Store, interval time.Duration) *StatsCollector {
	return &StatsCollector{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		log:      logger.WithComponent("cache-stats"),
	}
}

// Start begins the collection loop. Blocks until Stop is called or the
// context is cancelled; run it in a goroutine.
func (c *StatsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the collection loop.
func (c *StatsCollector) Stop() {
	close(c.stop)
}

func (c *StatsCollector) collect(ctx context.Context) {
	stats := c.store.Stats(ctx)
	if stats.Status == "connected" {
		metrics.CacheBackendUp.Set(1)
	} else {
		metrics.CacheBackendUp.Set(0)
	}
	metrics.CacheBackendKeys.Set(float64(stats.KeyCount))
	c.log.Debug("collected backend stats",
		"status", stats.Status,
		"keys", stats.KeyCount,
		"hit_rate", stats.HitRate(),
	)
}
