package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "TASKGRAPH",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance so CLI
// flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "TASKGRAPH",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (TASKGRAPH_*)
// 3. Project config (.taskgraph.yaml in current directory)
// 4. User config (~/.config/taskgraph/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".taskgraph")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "taskgraph"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("trace.mode", "off")
	l.v.SetDefault("trace.dir", ".taskgraph/traces")
	l.v.SetDefault("trace.redact", true)
	l.v.SetDefault("trace.redact_patterns", []string{})
	l.v.SetDefault("trace.max_bytes", 65536)

	l.v.SetDefault("tracing.provider", "noop")
	l.v.SetDefault("tracing.endpoint", "localhost:4317")
	l.v.SetDefault("tracing.insecure", false)
	l.v.SetDefault("tracing.sample_rate", 1.0)
	l.v.SetDefault("tracing.service_name", "taskgraph")

	l.v.SetDefault("orchestrator.max_parallel", 0)
	l.v.SetDefault("orchestrator.default_kind", "answer")
	l.v.SetDefault("orchestrator.timeout", "")

	l.v.SetDefault("tools.retry.max_attempts", 1)
	l.v.SetDefault("tools.retry.base_delay", "1s")
	l.v.SetDefault("tools.retry.max_delay", "30s")
	l.v.SetDefault("tools.retry.multiplier", 2.0)
	l.v.SetDefault("tools.rate_limit.enabled", false)
	l.v.SetDefault("tools.rate_limit.max_tokens", 10)
	l.v.SetDefault("tools.rate_limit.refill_rate", 5.0)
	l.v.SetDefault("tools.answer.prefix", "OUT:")

	l.v.SetDefault("store.backend", "sqlite")
	l.v.SetDefault("store.path", ".taskgraph/runs.db")

	l.v.SetDefault("server.addr", "127.0.0.1:8080")
	l.v.SetDefault("server.cors_origins", []string{})
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}
