// Package observability builds the OpenTelemetry tracer provider that the
// orchestrator reports run and node spans to.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	defaultBatchTimeout = 5 * time.Second
	defaultServiceName  = "taskgraph"

	// TracerName is the instrumentation scope of orchestrator spans.
	TracerName = "github.com/hugo-lorenzo-mato/taskgraph"
)

// TracingConfig selects and configures the span exporter.
type TracingConfig struct {
	Provider       string
	Endpoint       string
	Insecure       bool
	SampleRate     float64
	ServiceName    string
	ServiceVersion string
}

// TracingOption adjusts provider construction.
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	output       io.Writer
	batchTimeout time.Duration
	sync         bool
}

// WithOutput sets where the stdout provider writes spans.
func WithOutput(w io.Writer) TracingOption {
	return func(o *tracingOptions) {
		o.output = w
	}
}

// WithBatchTimeout sets the maximum time between batch exports.
func WithBatchTimeout(timeout time.Duration) TracingOption {
	return func(o *tracingOptions) {
		o.batchTimeout = timeout
	}
}

// WithSyncExport exports every span as it ends instead of batching.
func WithSyncExport() TracingOption {
	return func(o *tracingOptions) {
		o.sync = true
	}
}

// InitTracing builds a tracer provider for cfg.Provider and installs it as
// the global provider. The noop provider records nothing and is not
// installed.
func InitTracing(ctx context.Context, cfg TracingConfig, opts ...TracingOption) (*sdktrace.TracerProvider, error) {
	options := &tracingOptions{
		output:       os.Stderr,
		batchTimeout: defaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "", "noop":
		return sdktrace.NewTracerProvider(), nil

	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(options.output),
			stdouttrace.WithoutTimestamps(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}

	case "otlp":
		otlpOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter for %s: %w", cfg.Endpoint, err)
		}

	default:
		return nil, fmt.Errorf("unsupported tracing provider: %s", cfg.Provider)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tracing resource: %w", err)
	}

	processor := sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(options.batchTimeout))
	if options.sync {
		processor = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// ShutdownTracing flushes pending spans and stops the provider. The context
// bounds how long the flush may take.
func ShutdownTracing(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}
	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tracer provider: %w", err)
	}
	return nil
}
