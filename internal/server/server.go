package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opensensor/sensorcache/internal/api"
	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/config"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/middleware"
	"github.com/opensensor/sensorcache/internal/secrets"
	"github.com/opensensor/sensorcache/internal/source"
)

// Server owns the wired components: cache store, source store, the
// cache-aware read paths, and the HTTP router.
type Server struct {
	Router *mux.Router

	store       cache.Store
	redis       *cache.RedisStore // nil when running on the in-process store
	source      *source.Store
	collector   *cache.StatsCollector
	rateLimiter *middleware.RateLimiter
	httpServer  *http.Server
}

// New wires the full service from configuration. The cache backend is
// Redis when REDIS_URL is set; otherwise an in-process store keeps
// single-replica deployments working without extra infrastructure.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.WithComponent("server")

	srv := &Server{}

	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			URL:       cfg.RedisURL,
			Namespace: cfg.CacheNamespace,
			Timeout:   cfg.CacheOpTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("cache backend init failed: %w", err)
		}
		srv.redis = redisStore
		srv.store = redisStore
		log.Info("Using Redis cache backend",
			"url", secrets.MaskURL(cfg.RedisURL), "namespace", cfg.CacheNamespace)
	} else {
		srv.store = cache.NewMemoryStore()
		log.Warn("REDIS_URL not set, using in-process cache (single replica only)")
	}

	log.Info("Connecting to source store",
		"uri", secrets.MaskURL(cfg.MongoURI), "database", cfg.MongoDatabase)
	src, err := source.Connect(ctx, source.Config{
		URI:                cfg.MongoURI,
		Database:           cfg.MongoDatabase,
		ReadingsCollection: cfg.ReadingsCollection,
		DevicesCollection:  cfg.DevicesCollection,
		QueryTimeout:       cfg.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("source store init failed: %w", err)
	}
	srv.source = src

	guard := cache.NewSizeGuard(cfg.MaxEntryBytes)

	lookup := cache.NewLookup(srv.store, srcResolver{src}, guard)
	lookup.SetTTL(cfg.MetadataTTL)

	aggregation := cache.NewAggregation(srv.store, src, guard)
	aggregation.SetDefaultTTL(cfg.PipelineTTL)

	invalidator := cache.NewInvalidator(srv.store)

	srv.collector = cache.NewStatsCollector(srv.store, cfg.StatsInterval)

	if cfg.EnableRateLimit {
		srv.rateLimiter = middleware.NewRateLimiter(
			cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst,
		)
	}

	srv.Router = api.NewRouter(api.Deps{
		Store:       srv.store,
		Lookup:      lookup,
		Aggregation: aggregation,
		Invalidator: invalidator,
		Readings:    src,
		Cfg:         cfg,
		RateLimiter: srv.rateLimiter,
	})

	srv.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router,
	}

	return srv, nil
}

// srcResolver adapts the source store's ResolveDevice to the cache
// package's DeviceResolver method name.
type srcResolver struct {
	src *source.Store
}

func (r srcResolver) Resolve(ctx context.Context, deviceID string) ([]string, string, error) {
	return r.src.ResolveDevice(ctx, deviceID)
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called. The stats collector runs until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.collector.Start(ctx)

	logger.Get().Info("Server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.collector.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if srcErr := s.source.Close(ctx); srcErr != nil && err == nil {
		err = srcErr
	}
	return err
}
