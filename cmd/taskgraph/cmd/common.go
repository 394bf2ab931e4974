package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/adapters/specfile"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/config"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/observability"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/service"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/tools"
)

// Deps holds what commands need to plan and run tasks.
type Deps struct {
	Config       *config.Config
	Logger       *logging.Logger
	Registry     *tools.Registry
	Orchestrator *service.Orchestrator
	Tracer       *sdktrace.TracerProvider
}

const tracingShutdownTimeout = 5 * time.Second

// loadConfig reads configuration through the global viper instance so the
// persistent flags bound in root.go take precedence.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	return logging.New(logging.Config{
		Level:   level,
		Format:  cfg.Log.Format,
		Output:  cmd.ErrOrStderr(),
		NoColor: noColor,
	})
}

// InitDeps loads configuration and builds the tool registry and orchestrator.
// A positive maxParallel overrides the configured bound.
func InitDeps(cmd *cobra.Command, maxParallel int) (*Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)

	registry, err := tools.NewDefaultRegistry(cfg.Tools, logger)
	if err != nil {
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Provider:       cfg.Tracing.Provider,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: appVersion,
	}, observability.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	if maxParallel <= 0 {
		maxParallel = cfg.Orchestrator.MaxParallel
	}
	orch := service.NewOrchestrator(
		service.WithLogger(logger),
		service.WithMaxParallel(maxParallel),
		service.WithTracer(tp.Tracer(observability.TracerName)),
	)

	return &Deps{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Orchestrator: orch,
		Tracer:       tp,
	}, nil
}

// Close flushes pending spans. Commands defer it right after InitDeps.
func (d *Deps) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
	defer cancel()
	if err := observability.ShutdownTracing(ctx, d.Tracer); err != nil {
		d.Logger.Warn("tracing shutdown failed", "error", err)
	}
}

// OpenStore opens the configured run history store.
func (d *Deps) OpenStore() (core.RunStore, error) {
	store, err := state.NewRunStore(d.Config.Store.Backend, d.Config.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	return store, nil
}

// TraceConfig converts the trace settings for the service layer.
func (d *Deps) TraceConfig() service.TraceConfig {
	t := d.Config.Trace
	return service.TraceConfig{
		Mode:           t.Mode,
		Dir:            t.Dir,
		Redact:         t.Redact,
		RedactPatterns: t.RedactPatterns,
		MaxBytes:       t.MaxBytes,
	}
}

// RunContext applies the configured run timeout to ctx.
func (d *Deps) RunContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Config.Orchestrator.Timeout == "" {
		return context.WithCancel(ctx)
	}
	timeout, err := time.ParseDuration(d.Config.Orchestrator.Timeout)
	if err != nil || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// loadSpec reads a spec file and applies command line overrides.
func loadSpec(path string, inputs []string, outputNode, defaultKind string) (core.TaskSpec, error) {
	spec, err := specfile.Load(path)
	if err != nil {
		return core.TaskSpec{}, err
	}
	if len(inputs) > 0 {
		values, err := parseInputs(inputs)
		if err != nil {
			return core.TaskSpec{}, err
		}
		if spec.Input == nil {
			spec.Input = make(map[string]string, len(values))
		}
		for k, v := range values {
			spec.Input[k] = v
		}
	}
	if outputNode != "" {
		spec.OutputNode = core.NodeID(outputNode)
	}
	return spec.WithDefaultKind(defaultKind), nil
}

// parseInputs turns key=value pairs into a map. The value may contain '='.
func parseInputs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
