// Package tracing wires OpenTelemetry trace export for the retrieval
// pipeline. Spans cover the retrieval request and each stage beneath it.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the trace exporter. An empty Endpoint with Stdout false
// disables export entirely.
type Config struct {
	ServiceName string

	// Endpoint is an OTLP/gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// Stdout dumps spans to stdout instead of a collector. Development
	// only.
	Stdout bool
}

// Setup installs the global tracer provider. The returned shutdown func
// flushes pending spans; call it on exit.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "engram"
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch {
	case cfg.Endpoint != "":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	case cfg.Stdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		// No exporter configured: leave the default no-op provider.
		return func(context.Context) error { return nil }, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
