package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioagent/pkg/errors"
)

func TestLocalLimiter_Allow(t *testing.T) {
	// 60 req/min, burst=2
	limiter := NewLocalLimiter(ProviderNameOpenAI, 60, 2)

	assert.True(t, limiter.Allow(), "first request should be allowed")
	assert.True(t, limiter.Allow(), "second request should be allowed")
	assert.False(t, limiter.Allow(), "third request should be denied")
	assert.InDelta(t, 60.0, limiter.Limit(), 0.001)
}

func TestLocalLimiter_ContextCancellation(t *testing.T) {
	// 6 req/min = one token every 10s
	limiter := NewLocalLimiter(ProviderNameAnthropic, 6, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
}

func TestNewRateLimiter_Selection(t *testing.T) {
	assert.IsType(t, &NoOpLimiter{}, NewRateLimiter(ProviderNameAnthropic, RateLimitConfig{Enabled: false, ReqPerMinute: 50}, nil))
	assert.IsType(t, &NoOpLimiter{}, NewRateLimiter(ProviderNameAnthropic, RateLimitConfig{Enabled: true, ReqPerMinute: 0}, nil))
	assert.IsType(t, &LocalLimiter{}, NewRateLimiter(ProviderNameAnthropic, RateLimitConfig{Enabled: true, ReqPerMinute: 50}, nil))
}

func TestNormalizeBurst(t *testing.T) {
	assert.Equal(t, 5, normalizeBurst(50, 5))
	assert.Equal(t, 5, normalizeBurst(50, 0))
	assert.Equal(t, 1, normalizeBurst(6, 0))
}

func TestRateLimitError_Is(t *testing.T) {
	err := errors.Wrap(&RateLimitError{Provider: ProviderNameOpenAI, Limit: 10, Err: context.DeadlineExceeded}, "chat")
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
