package config

import (
	"strings"
	"testing"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Trace: TraceConfig{
			Mode:     "off",
			Dir:      ".taskgraph/traces",
			Redact:   true,
			MaxBytes: 65536,
		},
		Tracing: TracingConfig{
			Provider:    "noop",
			SampleRate:  1,
			ServiceName: "taskgraph",
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel: 0,
			DefaultKind: "answer",
		},
		Tools: ToolsConfig{
			Retry: RetryConfig{
				MaxAttempts: 1,
				BaseDelay:   "1s",
				MaxDelay:    "30s",
				Multiplier:  2,
			},
			RateLimit: RateLimitConfig{MaxTokens: 10, RefillRate: 5},
			Answer:    AnswerConfig{Prefix: "OUT:"},
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    ".taskgraph/runs.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

func hasField(errs ValidationErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidator_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := NewValidator().Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"trace mode", func(c *Config) { c.Trace.Mode = "full" }, "trace.mode"},
		{"trace dir", func(c *Config) { c.Trace.Mode = "file"; c.Trace.Dir = "" }, "trace.dir"},
		{"trace max bytes", func(c *Config) { c.Trace.MaxBytes = 0 }, "trace.max_bytes"},
		{"tracing provider", func(c *Config) { c.Tracing.Provider = "jaeger" }, "tracing.provider"},
		{"tracing endpoint", func(c *Config) { c.Tracing.Provider = "otlp"; c.Tracing.Endpoint = "" }, "tracing.endpoint"},
		{"tracing sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"max parallel", func(c *Config) { c.Orchestrator.MaxParallel = -1 }, "orchestrator.max_parallel"},
		{"default kind", func(c *Config) { c.Orchestrator.DefaultKind = " " }, "orchestrator.default_kind"},
		{"timeout format", func(c *Config) { c.Orchestrator.Timeout = "soon" }, "orchestrator.timeout"},
		{"timeout sign", func(c *Config) { c.Orchestrator.Timeout = "-1s" }, "orchestrator.timeout"},
		{"retry attempts", func(c *Config) { c.Tools.Retry.MaxAttempts = 0 }, "tools.retry.max_attempts"},
		{"retry delay", func(c *Config) { c.Tools.Retry.BaseDelay = "fast" }, "tools.retry.base_delay"},
		{"retry multiplier", func(c *Config) { c.Tools.Retry.Multiplier = 0.5 }, "tools.retry.multiplier"},
		{"rate limit tokens", func(c *Config) { c.Tools.RateLimit = RateLimitConfig{Enabled: true, RefillRate: 1} }, "tools.rate_limit.max_tokens"},
		{"store backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"cors origin", func(c *Config) { c.Server.CORSOrigins = []string{"localhost"} }, "server.cors_origins"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			errs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("error type = %T, want ValidationErrors", err)
			}
			if !hasField(errs, tt.field) {
				t.Errorf("expected error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidator_RateLimitDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Tools.RateLimit = RateLimitConfig{Enabled: false}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("disabled rate limit should not be validated: %v", err)
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "invalid"
	cfg.Store.Backend = "invalid"

	v := NewValidator()
	if err := v.Validate(cfg); err == nil {
		t.Fatal("Validate() error = nil")
	}
	if len(v.Errors()) != 2 {
		t.Errorf("len(Errors()) = %d, want 2", len(v.Errors()))
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "store.backend", Value: "x", Message: "bad"}
	msg := err.Error()
	for _, part := range []string{"store.backend", "bad", "x"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "one"},
		{Field: "b", Message: "two"},
	}
	if !strings.Contains(errs.Error(), "; ") {
		t.Errorf("Error() = %q, want joined messages", errs.Error())
	}
	if !errs.HasErrors() {
		t.Error("HasErrors() = false")
	}
	if (ValidationErrors{}).HasErrors() {
		t.Error("empty HasErrors() = true")
	}
}
