package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensensor/sensorcache/internal/circuitbreaker"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/metrics"
)

// RedisStore is a Store backed by a shared Redis service. All keys live
// under a single namespace prefix so the service can coexist with other
// tenants on the same instance. Expiry is delegated to Redis TTLs.
//
// Backend failures never surface to callers: every operation is bounded
// by a per-operation timeout and wrapped in a circuit breaker, and a
// failed attempt falls through to miss/no-op semantics without retrying.
type RedisStore struct {
	client    *redis.Client
	namespace string
	timeout   time.Duration
	breaker   *circuitbreaker.CircuitBreaker
	log       *slog.Logger
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	URL       string        // redis:// connection URL
	Namespace string        // key namespace prefix, e.g. "sensor"
	Timeout   time.Duration // per-operation timeout
}

// NewRedisStore connects to Redis and verifies connectivity. The returned
// store is usable even if the initial ping fails; operations will degrade
// until the backend comes back.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = cfg.Timeout
	opt.ReadTimeout = cfg.Timeout
	opt.WriteTimeout = cfg.Timeout

	s := &RedisStore{
		client:    redis.NewClient(opt),
		namespace: cfg.Namespace,
		timeout:   cfg.Timeout,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "redis-cache",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          15 * time.Second,
		}),
		log: logger.WithComponent("cache"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		s.log.Warn("redis unreachable at startup, caching degraded", "error", err)
	} else {
		s.log.Info("redis connection established", "namespace", cfg.Namespace)
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(k string) string {
	return s.namespace + ":" + k
}

// Get retrieves a value. Any backend failure is absorbed as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := time.Now()
	var val []byte
	err := s.breaker.Call(func() error {
		b, err := s.client.Get(opCtx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil // clean miss, not a backend failure
		}
		if err != nil {
			return err
		}
		val = b
		return nil
	})
	metrics.CacheOpDuration.WithLabelValues("get").Observe(time.Since(timer).Seconds())

	if err != nil {
		s.degraded(ctx, "get", key, err)
		return nil, false
	}
	return val, val != nil
}

// Set stores a value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := time.Now()
	err := s.breaker.Call(func() error {
		return s.client.Set(opCtx, s.key(key), value, ttl).Err()
	})
	metrics.CacheOpDuration.WithLabelValues("set").Observe(time.Since(timer).Seconds())

	if err != nil {
		s.degraded(ctx, "set", key, err)
		return false
	}
	return true
}

// Delete removes the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = s.key(k)
	}

	var deleted int64
	err := s.breaker.Call(func() error {
		n, err := s.client.Del(opCtx, namespaced...).Result()
		deleted = n
		return err
	})
	if err != nil {
		s.degraded(ctx, "delete", strings.Join(keys, ","), err)
		return 0
	}
	return int(deleted)
}

// DeleteByPattern scans the namespace for keys matching the glob pattern
// and deletes them in batches. SCAN keeps the operation incremental on a
// shared instance; KEYS would block it.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) int {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var deleted int64
	err := s.breaker.Call(func() error {
		iter := s.client.Scan(opCtx, 0, s.key(pattern), 100).Iterator()
		batch := make([]string, 0, 100)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := s.client.Del(opCtx, batch...).Result()
			deleted += n
			batch = batch[:0]
			return err
		}
		for iter.Next(opCtx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		return flush()
	})
	if err != nil {
		s.degraded(ctx, "delete_pattern", pattern, err)
	}
	return int(deleted)
}

// Ping checks backend connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(opCtx).Err()
}

// Stats reports backend statistics from INFO plus a namespaced key count.
func (s *RedisStore) Stats(ctx context.Context) Stats {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.client.Info(opCtx, "server", "memory", "stats").Result()
	if err != nil {
		s.degraded(ctx, "stats", "", err)
		return Stats{Status: "disconnected"}
	}

	stats := Stats{Status: "connected"}
	for _, line := range strings.Split(info, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch name {
		case "redis_version":
			stats.BackendVersion = value
		case "used_memory_human":
			stats.UsedMemory = value
		case "keyspace_hits":
			stats.Hits, _ = strconv.ParseUint(value, 10, 64)
		case "keyspace_misses":
			stats.Misses, _ = strconv.ParseUint(value, 10, 64)
		}
	}
	stats.KeyCount = s.countKeys(opCtx)
	return stats
}

// countKeys counts keys under the namespace via SCAN.
func (s *RedisStore) countKeys(ctx context.Context) int64 {
	var count int64
	iter := s.client.Scan(ctx, 0, s.key("*"), 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return count
	}
	return count
}

// degraded records and logs an absorbed backend failure. Circuit-open
// rejections log at debug; the trip itself was already logged.
func (s *RedisStore) degraded(ctx context.Context, op, key string, err error) {
	metrics.CacheDegradedOps.WithLabelValues(op).Inc()
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		s.log.Debug("cache operation skipped, circuit open", "op", op, "key", key)
		return
	}
	logger.WarnContext(ctx, "cache operation degraded",
		"component", "cache",
		"op", op,
		"key", key,
		"error", err,
	)
}
