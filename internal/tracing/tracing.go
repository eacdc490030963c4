// Package tracing provides OpenTelemetry spans for turns and tool
// executions, narrowed to the two span shapes this service actually
// needs — there is no channel/webhook traffic or multi-vendor LLM
// fan-out to trace here.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer. An empty Endpoint yields a no-op tracer
// that still satisfies the interface, so callers never need a nil check.
type Config struct {
	ServiceName  string
	Environment  string
	Endpoint     string // OTLP/gRPC collector address; empty disables export
	SamplingRate float64
	Insecure     bool
}

// Tracer emits turn- and tool-scoped spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer and a shutdown function that must be called on
// process exit (flushes any buffered spans).
func New(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "regassist"
	}

	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// StartTurn opens a span for one agent turn and returns the span-bearing
// context plus a function that ends the span, recording err if non-nil.
// Implements orchestrator.Tracer.
func (t *Tracer) StartTurn(ctx context.Context, agent, conversationID string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "turn", trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("conversation_id", conversationID),
		))
	return ctx, func(err error) { end(span, err) }
}

// StartTool opens a span for one tool execution. Implements
// orchestrator.Tracer.
func (t *Tracer) StartTool(ctx context.Context, tool string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "tool."+tool, trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", tool)))
	return ctx, func(err error) { end(span, err) }
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
