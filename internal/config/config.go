package config

// Config holds all application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Trace        TraceConfig        `mapstructure:"trace"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Store        StoreConfig        `mapstructure:"store"`
	Server       ServerConfig       `mapstructure:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TraceConfig configures run traces.
type TraceConfig struct {
	Mode           string   `mapstructure:"mode"`
	Dir            string   `mapstructure:"dir"`
	Redact         bool     `mapstructure:"redact"`
	RedactPatterns []string `mapstructure:"redact_patterns"`
	MaxBytes       int64    `mapstructure:"max_bytes"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Provider is noop, stdout or otlp.
	Provider    string  `mapstructure:"provider"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

// OrchestratorConfig configures graph execution.
type OrchestratorConfig struct {
	// MaxParallel bounds concurrent nodes per wave. Zero means unbounded.
	MaxParallel int `mapstructure:"max_parallel"`
	// DefaultKind is the tool used by nodes that name no kind.
	DefaultKind string `mapstructure:"default_kind"`
	// Timeout bounds a whole run. Empty means no deadline.
	Timeout string `mapstructure:"timeout"`
}

// ToolsConfig configures the built-in tool registry.
type ToolsConfig struct {
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Answer    AnswerConfig    `mapstructure:"answer"`
}

// RetryConfig configures retries around tool calls.
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelay   string  `mapstructure:"base_delay"`
	MaxDelay    string  `mapstructure:"max_delay"`
	Multiplier  float64 `mapstructure:"multiplier"`
}

// RateLimitConfig configures the token bucket shared by tool calls.
type RateLimitConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	MaxTokens  int     `mapstructure:"max_tokens"`
	RefillRate float64 `mapstructure:"refill_rate"`
}

// AnswerConfig configures the built-in answer tool.
type AnswerConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}
