package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateTrace(&cfg.Trace)
	v.validateTracing(&cfg.Tracing)
	v.validateOrchestrator(&cfg.Orchestrator)
	v.validateTools(&cfg.Tools)
	v.validateStore(&cfg.Store)
	v.validateServer(&cfg.Server)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateTrace(cfg *TraceConfig) {
	if cfg.Mode != "off" && cfg.Mode != "file" {
		v.addError("trace.mode", cfg.Mode, "must be one of: off, file")
	}
	if cfg.Mode == "file" {
		if cfg.Dir == "" {
			v.addError("trace.dir", cfg.Dir, "directory required")
		} else if !isValidPath(cfg.Dir) {
			v.addError("trace.dir", cfg.Dir, "invalid directory path")
		}
	}
	if cfg.MaxBytes <= 0 {
		v.addError("trace.max_bytes", cfg.MaxBytes, "must be positive")
	}
}

func (v *Validator) validateTracing(cfg *TracingConfig) {
	switch strings.ToLower(cfg.Provider) {
	case "noop", "stdout":
	case "otlp":
		if cfg.Endpoint == "" {
			v.addError("tracing.endpoint", cfg.Endpoint, "endpoint required for otlp")
		}
	default:
		v.addError("tracing.provider", cfg.Provider, "must be one of: noop, stdout, otlp")
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		v.addError("tracing.sample_rate", cfg.SampleRate, "must be between 0 and 1")
	}
}

func (v *Validator) validateOrchestrator(cfg *OrchestratorConfig) {
	if cfg.MaxParallel < 0 {
		v.addError("orchestrator.max_parallel", cfg.MaxParallel, "must not be negative")
	}
	if strings.TrimSpace(cfg.DefaultKind) == "" {
		v.addError("orchestrator.default_kind", cfg.DefaultKind, "tool kind required")
	}
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err != nil {
			v.addError("orchestrator.timeout", cfg.Timeout, "invalid duration format")
		} else if d <= 0 {
			v.addError("orchestrator.timeout", cfg.Timeout, "must be positive")
		}
	}
}

func (v *Validator) validateTools(cfg *ToolsConfig) {
	if cfg.Retry.MaxAttempts < 1 || cfg.Retry.MaxAttempts > 10 {
		v.addError("tools.retry.max_attempts", cfg.Retry.MaxAttempts, "must be between 1 and 10")
	}
	v.validateDuration("tools.retry.base_delay", cfg.Retry.BaseDelay)
	v.validateDuration("tools.retry.max_delay", cfg.Retry.MaxDelay)
	if cfg.Retry.Multiplier < 1 {
		v.addError("tools.retry.multiplier", cfg.Retry.Multiplier, "must be at least 1")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.MaxTokens <= 0 {
			v.addError("tools.rate_limit.max_tokens", cfg.RateLimit.MaxTokens, "must be positive")
		}
		if cfg.RateLimit.RefillRate <= 0 {
			v.addError("tools.rate_limit.refill_rate", cfg.RateLimit.RefillRate, "must be positive")
		}
	}
}

func (v *Validator) validateDuration(field, value string) {
	if _, err := time.ParseDuration(value); err != nil {
		v.addError(field, value, "invalid duration format")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Backend != "sqlite" && cfg.Backend != "json" {
		v.addError("store.backend", cfg.Backend, "must be one of: sqlite, json")
	}
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "path required")
	} else if !isValidPath(cfg.Path) {
		v.addError("store.path", cfg.Path, "invalid file path")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "listen address required")
	}
	for _, origin := range cfg.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			v.addError("server.cors_origins", origin, "must be * or an http(s) origin")
		}
	}
}

// isValidPath checks that a path's parent is either present or creatable.
func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
