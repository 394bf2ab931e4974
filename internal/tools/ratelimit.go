package tools

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// RateLimiter is a token bucket shared by the tool calls of a registry.
type RateLimiter struct {
	limiter *rate.Limiter
}

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	MaxTokens  float64 // bucket capacity
	RefillRate float64 // tokens added per second
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:  10,
		RefillRate: 1,
	}
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.MaxTokens < 1 || cfg.RefillRate <= 0 {
		cfg = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillRate), int(cfg.MaxTokens)),
	}
}

// Acquire blocks until a token is available. It fails when ctx is done or
// its deadline would pass before the next token.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// WithRateLimit wraps tool so every call first takes a token from limiter.
// A failed wait surfaces as a RATE_LIMIT error carrying the cause.
func WithRateLimit(tool core.Tool, limiter *RateLimiter) core.Tool {
	if limiter == nil {
		return tool
	}
	return core.ToolFunc(func(ctx context.Context, args core.ToolArgs) (string, error) {
		if err := limiter.Acquire(ctx); err != nil {
			return "", core.ErrRateLimit("waiting for tool capacity").WithCause(err)
		}
		return tool.Invoke(ctx, args)
	})
}
