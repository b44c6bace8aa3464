package ai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioagent/pkg/errors"
)

// testRedis connects to TEST_REDIS_ADDR or skips
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewRateLimiter_PrefersRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	l := NewRateLimiter(ProviderNameOpenAI, RateLimitConfig{Enabled: true, ReqPerMinute: 30}, client)
	require.IsType(t, &RedisRateLimiter{}, l)
	assert.Equal(t, bucketKeyPrefix+"openai", l.(*RedisRateLimiter).key)
	assert.InDelta(t, 30.0, l.Limit(), 0.001)
}

func TestRedisRateLimiter_UnreachableDenies(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	l := NewRedisRateLimiter(client, ProviderNameAnthropic, 60, 1)
	assert.False(t, l.Allow())

	err := l.Wait(context.Background())
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
}

func TestRedisRateLimiter_SharedBucket(t *testing.T) {
	client := testRedis(t)
	provider := ProviderName("test-" + time.Now().Format("150405.000000"))
	t.Cleanup(func() { client.Del(context.Background(), bucketKeyPrefix+provider.String()) })

	// two instances, one bucket of two tokens refilling once a second
	a := NewRedisRateLimiter(client, provider, 60, 2)
	b := NewRedisRateLimiter(client, provider, 60, 2)

	assert.True(t, a.Allow())
	assert.True(t, b.Allow())
	assert.False(t, a.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, b.Wait(ctx))
	assert.Greater(t, time.Since(start), 500*time.Millisecond)
}
