package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

const tracerName = "github.com/tigerroll/swell/pkg/stream"

// OTelTracer implements coremetrics.Tracer with an OpenTelemetry SDK tracer
// provider exporting spans over OTLP gRPC.
type OTelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTelTracer builds a tracer provider that exports to the configured OTLP
// endpoint and registers it as the global provider.
func NewOTelTracer(ctx context.Context, cfg config.TracingConfig) (*OTelTracer, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, exception.NewStreamError("metrics", "failed to create OTLP trace exporter", err, false)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("swell"),
	))
	if err != nil {
		return nil, exception.NewStreamError("metrics", "failed to build trace resource", err, false)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Infof("OTLP trace exporter configured for endpoint '%s'.", cfg.OTLPEndpoint)
	return &OTelTracer{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
	}, nil
}

type otelSpanEnder struct {
	span trace.Span
}

func (e otelSpanEnder) End(err error) {
	if err != nil {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	} else {
		e.span.SetStatus(codes.Ok, "")
	}
	e.span.End()
}

func (t *OTelTracer) StartQuerySpan(ctx context.Context, queryName string) (context.Context, coremetrics.SpanEnder) {
	ctx, span := t.tracer.Start(ctx, "query.run",
		trace.WithAttributes(attribute.String("swell.query.name", queryName)),
	)
	return ctx, otelSpanEnder{span: span}
}

func (t *OTelTracer) StartBatchSpan(ctx context.Context, queryName string, batchID int64) (context.Context, coremetrics.SpanEnder) {
	ctx, span := t.tracer.Start(ctx, "query.batch",
		trace.WithAttributes(
			attribute.String("swell.query.name", queryName),
			attribute.Int64("swell.batch.id", batchID),
		),
	)
	return ctx, otelSpanEnder{span: span}
}

// Shutdown flushes buffered spans and stops the provider.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return exception.NewStreamError("metrics", "failed to shut down tracer provider", err, false)
	}
	return nil
}

var _ coremetrics.Tracer = (*OTelTracer)(nil)
