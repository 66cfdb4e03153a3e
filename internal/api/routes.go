package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensensor/sensorcache/internal/api/handlers"
	"github.com/opensensor/sensorcache/internal/cache"
	"github.com/opensensor/sensorcache/internal/config"
	"github.com/opensensor/sensorcache/internal/middleware"
)

// Deps carries the wired components the routes need.
type Deps struct {
	Store       cache.Store
	Lookup      *cache.Lookup
	Aggregation *cache.Aggregation
	Invalidator *cache.Invalidator
	Readings    handlers.ReadingWriter
	Cfg         *config.Config
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
}

// NewRouter builds the HTTP surface: readings ingest, historical data
// queries, health, metrics, and token-gated cache administration.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverWithSentry)
	r.Use(middleware.SecurityHeaders)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = deps.Cfg.CORSAllowedOrigins
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Compression)

	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Limit)
	}

	dataHandler := handlers.NewDataHandler(deps.Lookup, deps.Aggregation)
	readingsHandler := handlers.NewReadingsHandler(deps.Readings, deps.Invalidator)
	adminHandler := handlers.NewCacheAdminHandler(deps.Store)

	// Ingest
	r.HandleFunc("/readings/{type}", readingsHandler.PostReading).Methods(http.MethodPost)
	r.HandleFunc("/environment", readingsHandler.PostEnvironment).Methods(http.MethodPost)

	// Historical queries
	r.HandleFunc("/data/{type}/{device_id}", dataHandler.GetHistorical).Methods(http.MethodGet)

	// Operational. The metrics handler's own compression is disabled;
	// the shared middleware already encodes responses.
	r.HandleFunc("/healthz", handlers.Health(deps.Store)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{DisableCompression: true},
	)).Methods(http.MethodGet)

	// Admin, gated behind a static bearer token
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminToken(deps.Cfg.AdminAPIToken))
	admin.HandleFunc("/cache/stats", adminHandler.GetStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/clear", adminHandler.Clear).Methods(http.MethodPost)
	admin.HandleFunc("/cache/invalidate", adminHandler.Invalidate).Methods(http.MethodPost)

	return r
}
