package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc
}

func TestRedisCache_Ping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.JobStatusKey(uuid.New())

	_, ok, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Set(ctx, key, []byte(`{"status":"success"}`), time.Minute))

	val, ok, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"status":"success"}`), val)

	require.NoError(t, rc.Delete(ctx, key))
	_, ok, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_SetExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.JobStatusKey(uuid.New())

	require.NoError(t, rc.Set(ctx, key, []byte("x"), 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	_, ok, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_IncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("192.0.2.1")

	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// A separate address counts independently.
	got, err := rc.IncrWithExpiry(ctx, cache.RateLimitKey("192.0.2.2"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestNoop_NeverHitsNeverCounts(t *testing.T) {
	n := cache.Noop{}
	ctx := context.Background()

	require.NoError(t, n.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := n.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := n.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}
