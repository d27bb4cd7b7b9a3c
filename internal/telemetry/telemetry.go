// Package telemetry sets up OpenTelemetry tracing. When tracing is
// disabled the global provider stays noop and spans cost nothing.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the execution core.
const TracerName = "github.com/AutomatosAI/automatos-unified-adapter"

// Settings configures Init.
type Settings struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Output receives exported spans as JSON lines. Defaults to io.Discard
	// when nil.
	Output io.Writer
}

// Provider wraps the SDK tracer provider. A disabled Provider has a nil
// tp and Shutdown is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init creates a tracer provider exporting to s.Output and registers it
// globally.
func Init(s Settings, logger *slog.Logger) (*Provider, error) {
	if !s.Enabled {
		logger.Debug("tracing disabled, using noop provider")
		return &Provider{}, nil
	}

	out := s.Output
	if out == nil {
		out = io.Discard
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", s.ServiceName),
		attribute.String("service.version", s.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled", "exporter", "stdout", "service_name", s.ServiceName)
	return &Provider{tp: tp}, nil
}

// Tracer returns the execution tracer from p, or the global provider when
// p is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(TracerName)
	}
	return p.tp.Tracer(TracerName)
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
