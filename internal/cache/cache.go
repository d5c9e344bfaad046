// Package cache stores rendered text blobs (the planning context) between
// requests. Redis is used when REDIS_ADDR is set; otherwise caching is off.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/54b3r/plotline-go/internal/logging"
)

// DefaultTTL bounds how long a cached blob may be served after the data
// behind it changed without an explicit invalidation.
const DefaultTTL = 10 * time.Minute

// Cache is a string key/value cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend connection.
	Close() error
}

// PlanningKey returns the cache key of a book's planning context.
func PlanningKey(bookID string) string {
	return "plotline:planning:" + bookID
}

// GetOrBuild returns the cached value for key, or calls build and caches its
// result. Cache failures are logged and bypassed; only build errors are
// returned.
func GetOrBuild(ctx context.Context, c Cache, key string, build func(context.Context) (string, error)) (string, error) {
	log := logging.FromContext(ctx)
	if v, ok, err := c.Get(ctx, key); err != nil {
		log.Warn("cache get failed", "key", key, "error", err)
	} else if ok {
		return v, nil
	}

	v, err := build(ctx)
	if err != nil {
		return "", err
	}
	if err := c.Set(ctx, key, v); err != nil {
		log.Warn("cache set failed", "key", key, "error", err)
	}
	return v, nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Set(context.Context, string, string) error         { return nil }
func (Nop) Delete(context.Context, ...string) error           { return nil }
func (Nop) Ping(context.Context) error                        { return nil }
func (Nop) Close() error                                      { return nil }

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	// Addr is host:port. Required.
	Addr string
	// Password is optional.
	Password string
	// DB selects the logical database.
	DB int
	// TTL is applied to every Set. Defaults to DefaultTTL.
	TTL time.Duration
}

// RedisConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and
// REDIS_TTL (seconds).
// It returns nil when REDIS_ADDR is unset.
func RedisConfigFromEnv() *RedisConfig {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil
	}
	cfg := &RedisConfig{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = v
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_TTL")); err == nil && v > 0 {
		cfg.TTL = time.Duration(v) * time.Second
	}
	return cfg
}

// Redis is a Cache on a Redis server.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg *RedisConfig) (*Redis, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("cache: redis address is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Ping implements Cache.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
