package ai

import (
	"github.com/redis/go-redis/v9"

	"folioagent/internal/adapters/config"
	"folioagent/pkg/logger"
)

// BuildProvider returns the provider selected by cfg, or nil when it has no credential.
// redisClient is optional; when set, the rate limit is shared across agent instances.
// An unknown provider name falls back to Anthropic.
func BuildProvider(cfg config.AIConfig, redisClient *redis.Client) ChatProvider {
	name, ok := ParseProviderName(cfg.Provider)
	if !ok {
		logger.Get().Warnw("unknown AI provider, using anthropic", "provider", cfg.Provider)
		name = ProviderNameAnthropic
	}

	apiKey := cfg.ClaudeKey
	if name == ProviderNameOpenAI {
		apiKey = cfg.OpenAIKey
	}
	if apiKey == "" {
		return nil
	}

	if cfg.Model == "" {
		logger.Get().Infow("AI_MODEL not set, using provider default", "provider", name, "model", DefaultModel(name))
	}

	limiter := NewRateLimiter(name, RateLimitConfig{
		Enabled:      cfg.RateLimitEnabled,
		ReqPerMinute: cfg.RateLimitPerMin,
		Burst:        cfg.RateLimitBurst,
	}, redisClient)

	if name == ProviderNameOpenAI {
		return NewOpenAIProvider(apiKey, cfg.OpenAIBaseURL, cfg.Timeout, limiter)
	}
	return NewClaudeProvider(apiKey, cfg.ClaudeBaseURL, cfg.Timeout, limiter)
}
