package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName    = "code-buddy"
	serviceVersion = "0.1.0"
	tracerName     = "github.com/cchalm/code-buddy"
)

// TelemetryConfig holds the configuration for telemetry
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string // host:port of an OTLP/HTTP collector
	Side         string // "ui" or "backend"
}

// Provider manages the telemetry system. A disabled provider hands out no-op spans.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NewProvider creates a new telemetry provider and installs it as the global tracer provider
func NewProvider(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		log.Debug().Msg("Telemetry disabled")
		return Disabled(), nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
		attribute.String("code_buddy.side", config.Side),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", config.OTLPEndpoint).Msg("Telemetry enabled")
	return &Provider{
		tracer:   tp.Tracer(tracerName),
		shutdown: tp.Shutdown,
	}, nil
}

// Disabled returns a provider whose spans record nothing
func Disabled() *Provider {
	return FromTracerProvider(noop.NewTracerProvider())
}

// FromTracerProvider wraps an existing tracer provider. Shutdown is left to the caller.
func FromTracerProvider(tp trace.TracerProvider) *Provider {
	return &Provider{
		tracer:   tp.Tracer(tracerName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Shutdown flushes pending spans and shuts down the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	log.Debug().Msg("Shutting down telemetry provider")
	return p.shutdown(ctx)
}

// TurnTelemetry holds telemetry data for a conversation turn
type TurnTelemetry struct {
	TurnID      string
	TurnIndex   int
	QueryLength int
	Attachment  string // filename of the attached file, if any
}

// StartTurn opens the span covering one turn from send to settle
func (p *Provider) StartTurn(ctx context.Context, turn TurnTelemetry) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("turn.id", turn.TurnID),
		attribute.Int("turn.index", turn.TurnIndex),
		attribute.Int("turn.query_length", turn.QueryLength),
	}
	if turn.Attachment != "" {
		attrs = append(attrs, attribute.String("turn.attachment", turn.Attachment))
	}
	return p.tracer.Start(ctx, "turn", trace.WithAttributes(attrs...))
}

// GenerationTelemetry holds telemetry data for one backend generation
type GenerationTelemetry struct {
	TurnID       string
	Responder    string
	PromptTokens int
	FileCount    int
}

// StartGeneration opens the span covering prompt assembly and the model call
func (p *Provider) StartGeneration(ctx context.Context, gen GenerationTelemetry) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "generate", trace.WithAttributes(
		attribute.String("turn.id", gen.TurnID),
		attribute.String("generation.responder", gen.Responder),
		attribute.Int("generation.prompt_tokens", gen.PromptTokens),
		attribute.Int("generation.file_count", gen.FileCount),
	))
}

// End closes span, marking it failed if err is non-nil
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
