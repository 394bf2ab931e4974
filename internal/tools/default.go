package tools

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/config"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

// NewDefaultRegistry registers the built-in tools, wrapped with the retry and
// rate limit decorators the configuration asks for. One limiter is shared by
// every built-in.
func NewDefaultRegistry(cfg config.ToolsConfig, logger *logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	policy, err := retryPolicyFromConfig(cfg.Retry)
	if err != nil {
		return nil, err
	}

	var limiter *RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = NewRateLimiter(RateLimiterConfig{
			MaxTokens:  float64(cfg.RateLimit.MaxTokens),
			RefillRate: cfg.RateLimit.RefillRate,
		})
	}

	prefix := cfg.Answer.Prefix
	if prefix == "" {
		prefix = DefaultAnswerPrefix
	}

	builtins := []struct {
		kind string
		tool core.Tool
	}{
		{"answer", Answer{Prefix: prefix}},
		{"echo", Echo()},
		{"upper", Upper()},
		{"join", Join()},
	}

	reg := NewRegistry()
	for _, b := range builtins {
		kindLogger := logger.WithTool(b.kind)
		notify := func(attempt int, err error, delay time.Duration) {
			kindLogger.Warn("retrying tool", "attempt", attempt, "delay", delay, "error", err)
		}
		tool := WithRetry(WithRateLimit(b.tool, limiter), policy, notify)
		if err := reg.Register(b.kind, tool); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func retryPolicyFromConfig(cfg config.RetryConfig) (*RetryPolicy, error) {
	if cfg.MaxAttempts <= 1 {
		return nil, nil
	}
	opts := []RetryPolicyOption{WithMaxAttempts(cfg.MaxAttempts)}
	if cfg.BaseDelay != "" {
		d, err := time.ParseDuration(cfg.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parsing tools.retry.base_delay: %w", err)
		}
		opts = append(opts, WithBaseDelay(d))
	}
	if cfg.MaxDelay != "" {
		d, err := time.ParseDuration(cfg.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("parsing tools.retry.max_delay: %w", err)
		}
		opts = append(opts, WithMaxDelay(d))
	}
	if cfg.Multiplier >= 1 {
		opts = append(opts, WithMultiplier(cfg.Multiplier))
	}
	return NewRetryPolicy(opts...), nil
}
