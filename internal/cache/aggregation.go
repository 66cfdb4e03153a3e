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

// PipelineExecutor is the source-store collaborator for aggregation
// pipelines. Execution errors propagate to the caller unchanged; the
// cache layer adds no error kinds of its own.
type PipelineExecutor interface {
	ExecutePipeline(ctx context.Context, pipeline []Stage) ([]Document, error)
}

// Aggregation wraps pipeline execution with the pipeline-result cache
// tier. Keys are content-addressed over the logical pipeline, so two
// queries differing only in pagination share an entry: the call-site must
// apply skip/limit to the returned documents after the cache read, never
// inside the cached pipeline.
type Aggregation struct {
	store      Store
	exec       PipelineExecutor
	guard      *SizeGuard
	defaultTTL time.Duration
	group      singleflight.Group
	log        *slog.Logger
}

// NewAggregation creates a cache-aware pipeline executor.
func NewAggregation(store Store, exec PipelineExecutor, guard *SizeGuard) *Aggregation {
	return &Aggregation{
		store:      store,
		exec:       exec,
		guard:      guard,
		defaultTTL: TierPipelineResult.DefaultTTL(),
		log:        logger.WithComponent("cache"),
	}
}

// SetDefaultTTL overrides the pipeline tier default, e.g. from
// configuration. It applies when Execute is called with a non-positive
// ttl.
func (a *Aggregation) SetDefaultTTL(ttl time.Duration) {
	if ttl > 0 {
		a.defaultTTL = ttl
	}
}

// Execute runs an aggregation pipeline, serving from cache when possible.
// A non-positive ttl uses the pipeline tier default. Empty results are
// returned but never cached, so data arriving later is not masked by a
// cached "nothing found".
func (a *Aggregation) Execute(ctx context.Context, pipeline []Stage, ttl time.Duration) ([]Document, error) {
	if ttl <= 0 {
		ttl = a.defaultTTL
	}

	key, err := PipelineKey(pipeline)
	if err != nil {
		// Unhashable pipeline: skip the cache for this call.
		a.log.Warn("pipeline not cacheable", "error", err)
		return a.exec.ExecutePipeline(ctx, pipeline)
	}

	if raw, ok := a.store.Get(ctx, key); ok {
		var docs []Document
		if err := json.Unmarshal(raw, &docs); err == nil {
			metrics.CacheHits.WithLabelValues(TierPipelineResult.String()).Inc()
			return docs, nil
		}
		a.log.Warn("discarding undecodable pipeline entry", "key", key)
	}
	metrics.CacheMisses.WithLabelValues(TierPipelineResult.String()).Inc()

	result, err, _ := a.group.Do(key, func() (any, error) {
		docs, err := a.exec.ExecutePipeline(ctx, pipeline)
		if err != nil {
			return nil, err
		}

		if len(docs) > 0 {
			if raw, err := json.Marshal(docs); err == nil && a.guard.Admit(TierPipelineResult, len(raw)) {
				a.store.Set(ctx, key, raw, ttl)
			}
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Document), nil
}
