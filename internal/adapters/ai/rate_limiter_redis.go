package ai

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"folioagent/pkg/errors"
)

// bucketKeyPrefix namespaces the shared buckets, one per provider
const bucketKeyPrefix = "folioagent:llm_bucket:"

// maxBucketWait caps one sleep so a cancelled context is noticed promptly
const maxBucketWait = 2 * time.Second

// takeTokenScript refills the bucket for the elapsed time and takes one token.
// It returns 0 when a token was taken, otherwise the milliseconds until one is due.
//
// KEYS[1] bucket key; ARGV: rate (tokens/s), burst, now (unix seconds, fractional)
const takeTokenScript = `
local rate  = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now   = tonumber(ARGV[3])

local state  = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts     = tonumber(state[2]) or now

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', KEYS[1], math.ceil(burst / rate) + 60)
return wait
`

// RedisRateLimiter is a token bucket stored in Redis so every agent instance
// calling the same provider shares one budget.
type RedisRateLimiter struct {
	client   *redis.Client
	provider ProviderName
	rate     float64 // tokens per second
	burst    int
	key      string
	script   *redis.Script
}

// NewRedisRateLimiter creates a limiter allowing reqPerMinute across all instances
func NewRedisRateLimiter(client *redis.Client, provider ProviderName, reqPerMinute float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		provider: provider,
		rate:     reqPerMinute / 60.0,
		burst:    normalizeBurst(reqPerMinute, burst),
		key:      bucketKeyPrefix + provider.String(),
		script:   redis.NewScript(takeTokenScript),
	}
}

// Wait blocks until the shared bucket yields a token or ctx is done
func (l *RedisRateLimiter) Wait(ctx context.Context) error {
	for {
		wait, err := l.take(ctx)
		if err != nil {
			return &RateLimitError{Provider: l.provider, Limit: l.Limit(), Err: err}
		}
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(min(wait, maxBucketWait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RateLimitError{Provider: l.provider, Limit: l.Limit(), Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// Allow takes a token without waiting. Redis errors deny the request.
func (l *RedisRateLimiter) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	wait, err := l.take(ctx)
	return err == nil && wait == 0
}

// Limit returns the shared rate in requests per minute
func (l *RedisRateLimiter) Limit() float64 {
	return l.rate * 60.0
}

// take runs the bucket script and returns how long to wait before retrying
func (l *RedisRateLimiter) take(ctx context.Context) (time.Duration, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	ms, err := l.script.Run(ctx, l.client, []string{l.key}, l.rate, l.burst, now).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "llm token bucket")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
