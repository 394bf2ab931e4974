package tools

import (
	"context"
	"testing"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/config"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

func TestNewDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry(config.ToolsConfig{
		Retry:     config.RetryConfig{MaxAttempts: 2, BaseDelay: "1ms", MaxDelay: "5ms", Multiplier: 2},
		RateLimit: config.RateLimitConfig{Enabled: true, MaxTokens: 5, RefillRate: 100},
	}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}

	for _, kind := range []string{"answer", "echo", "upper", "join"} {
		if !reg.Has(kind) {
			t.Errorf("missing built-in %q", kind)
		}
	}

	answer, _ := reg.Get("answer")
	out, err := answer.Invoke(context.Background(), core.ToolArgs{Query: "T"})
	if err != nil || out != "OUT:T" {
		t.Errorf("answer Invoke() = %q, %v", out, err)
	}
}

func TestNewDefaultRegistry_CustomPrefix(t *testing.T) {
	reg, err := NewDefaultRegistry(config.ToolsConfig{
		Retry:  config.RetryConfig{MaxAttempts: 1},
		Answer: config.AnswerConfig{Prefix: "ANS:"},
	}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	answer, _ := reg.Get("answer")
	out, _ := answer.Invoke(context.Background(), core.ToolArgs{Query: "x"})
	if out != "ANS:x" {
		t.Errorf("Invoke() = %q, want %q", out, "ANS:x")
	}
}

func TestNewDefaultRegistry_BadDelay(t *testing.T) {
	_, err := NewDefaultRegistry(config.ToolsConfig{
		Retry: config.RetryConfig{MaxAttempts: 3, BaseDelay: "soon"},
	}, nil)
	if err == nil {
		t.Error("expected error for invalid base delay")
	}
}
