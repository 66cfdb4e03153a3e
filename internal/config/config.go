package config

import (
	"os"
	"strings"
	"time"

	"github.com/opensensor/sensorcache/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// HTTP server
	ListenAddr string

	// Cache backend
	RedisURL       string        // empty means in-process fallback store
	CacheNamespace string        // key namespace prefix in the shared backend
	CacheOpTimeout time.Duration // per-operation timeout before degrading
	MaxEntryBytes  int           // admission ceiling per cached entry

	// Tier TTLs; the aggregated-chunk tier keeps its fixed default
	MetadataTTL time.Duration
	PipelineTTL time.Duration

	// Source store
	MongoURI           string
	MongoDatabase      string
	ReadingsCollection string
	DevicesCollection  string
	QueryTimeout       time.Duration

	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string

	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware

	// Observability settings. Tracing and error reporting read their own
	// env vars (OTEL_*, SENTRY_DSN) at init.
	LogLevel          string // log level: debug, info, warn, error
	StatsInterval     time.Duration
	SentryEnvironment string // Sentry environment (dev, staging, production)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		ListenAddr: getEnvOr("LISTEN_ADDR", ":8000"),

		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheNamespace: getEnvOr("CACHE_NAMESPACE", "sensor"),
		CacheOpTimeout: time.Duration(utils.GetEnvAsInt("CACHE_OP_TIMEOUT_MS", 250)) * time.Millisecond,
		MaxEntryBytes:  utils.GetEnvAsInt("CACHE_MAX_ENTRY_BYTES", 1<<20),

		MetadataTTL: time.Duration(utils.GetEnvAsInt("CACHE_METADATA_TTL_HOURS", 24)) * time.Hour,
		PipelineTTL: time.Duration(utils.GetEnvAsInt("CACHE_PIPELINE_TTL_MIN", 15)) * time.Minute,

		MongoURI:           strings.TrimSpace(os.Getenv("MONGODB_URI")),
		MongoDatabase:      getEnvOr("MONGODB_DATABASE", "opensensor"),
		ReadingsCollection: getEnvOr("READINGS_COLLECTION", "SensorReadings"),
		DevicesCollection:  getEnvOr("DEVICES_COLLECTION", "Devices"),
		QueryTimeout:       time.Duration(utils.GetEnvAsInt("QUERY_TIMEOUT_MS", 25000)) * time.Millisecond,

		AdminAPIToken: strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),

		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),

		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		StatsInterval:     time.Duration(utils.GetEnvAsInt("CACHE_STATS_INTERVAL_SEC", 30)) * time.Second,
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	// Parse CORS allowed origins
	cached.CORSAllowedOrigins = utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
		[]string{"http://localhost:5173", "http://localhost:3000"}, ",")
	for i := range cached.CORSAllowedOrigins {
		cached.CORSAllowedOrigins[i] = strings.TrimSpace(cached.CORSAllowedOrigins[i])
	}

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

func getEnvOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
