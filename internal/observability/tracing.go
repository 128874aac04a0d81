// Package observability wires OpenTelemetry tracing for the service.
//
// Spans are exported over OTLP/HTTP to a local collector (or agent). When no
// endpoint is configured, tracing stays disabled and Setup returns a no-op
// shutdown so callers don't need to branch.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty
	// disables tracing.
	Endpoint string
	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string
	// ServiceName identifies the service in the tracing backend.
	ServiceName string
}

// Setup installs a global TracerProvider exporting to the configured
// collector. The returned shutdown flushes pending spans; it is always
// non-nil.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		slog.Debug("tracing disabled, no OTLP endpoint configured")
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // collector runs on localhost or in-cluster
	)
	if err != nil {
		return noop, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	slog.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tp.Shutdown, nil
}
