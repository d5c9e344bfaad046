package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory Cache for tests.
type mapCache struct {
	mu     sync.Mutex
	m      map[string]string
	getErr error
	setErr error
}

func newMapCache() *mapCache { return &mapCache{m: map[string]string{}} }

func (c *mapCache) Get(_ context.Context, k string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.m[k]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, k, v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.m[k] = v
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

func (c *mapCache) Ping(context.Context) error { return nil }
func (c *mapCache) Close() error               { return nil }

func TestGetOrBuild_CachesResult(t *testing.T) {
	t.Parallel()
	c := newMapCache()
	calls := 0
	build := func(context.Context) (string, error) {
		calls++
		return "blob", nil
	}
	ctx := context.Background()

	for range 3 {
		v, err := GetOrBuild(ctx, c, PlanningKey("b1"), build)
		require.NoError(t, err)
		assert.Equal(t, "blob", v)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Delete(ctx, PlanningKey("b1")))
	_, err := GetOrBuild(ctx, c, PlanningKey("b1"), build)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetOrBuild_CacheErrorsAreBypassed(t *testing.T) {
	t.Parallel()
	c := newMapCache()
	c.getErr = errors.New("redis down")
	c.setErr = errors.New("redis down")

	v, err := GetOrBuild(context.Background(), c, "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestGetOrBuild_BuildErrorNotCached(t *testing.T) {
	t.Parallel()
	c := newMapCache()
	boom := errors.New("db down")
	_, err := GetOrBuild(context.Background(), c, "k", func(context.Context) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Empty(t, c.m)
}

func TestNop(t *testing.T) {
	t.Parallel()
	var c Cache = Nop{}
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v"))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	assert.Nil(t, RedisConfigFromEnv())

	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TTL", "90")
	cfg := RedisConfigFromEnv()
	require.NotNil(t, cfg)
	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 90*time.Second, cfg.TTL)
}

func TestNewRedis_Unreachable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, &RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)

	_, err = NewRedis(ctx, &RedisConfig{})
	assert.Error(t, err)
}
