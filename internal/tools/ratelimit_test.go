package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

func TestRateLimiter_BurstThenDeadline(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 2, RefillRate: 0.001})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 2; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}
	if err := limiter.Acquire(ctx); err == nil {
		t.Error("expected an empty bucket to refuse a wait past the deadline")
	}
}

func TestRateLimiter_AcquireWaitsForRefill(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 100})
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	start := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("second token took too long")
	}
}

func TestRateLimiter_AcquireCancelled(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestRateLimiter_InvalidConfigUsesDefaults(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 0.5})

	if got := limiter.limiter.Burst(); got != int(DefaultRateLimiterConfig().MaxTokens) {
		t.Errorf("Burst() = %d, want %v", got, DefaultRateLimiterConfig().MaxTokens)
	}
	if got := float64(limiter.limiter.Limit()); got != DefaultRateLimiterConfig().RefillRate {
		t.Errorf("Limit() = %v, want %v", got, DefaultRateLimiterConfig().RefillRate)
	}
}

func TestWithRateLimit(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 0.001})
	tool := WithRateLimit(Upper(), limiter)

	out, err := tool.Invoke(context.Background(), core.ToolArgs{Query: "a"})
	if err != nil || out != "A" {
		t.Fatalf("Invoke() = %q, %v", out, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tool.Invoke(ctx, core.ToolArgs{Query: "b"})
	if !core.IsCategory(err, core.ErrCatRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestWithRateLimit_CancelledWrapsContextError(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{MaxTokens: 1, RefillRate: 1})
	tool := WithRateLimit(Upper(), limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tool.Invoke(ctx, core.ToolArgs{Query: "a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want it to wrap context.Canceled", err)
	}
}
