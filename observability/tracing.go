package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartSendSpan starts a span covering one logical send.
	StartSendSpan(ctx context.Context, eventName, dispatchID string) (context.Context, trace.Span)

	// StartDescriptorSpan starts a child span for one outbound request.
	StartDescriptorSpan(ctx context.Context, typeCode string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager using provider, or the global OTel
// tracer provider when provider is nil.
func NewSpanManager(provider trace.TracerProvider) SpanManager {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: provider.Tracer(instrumentationName)}
}

func (m *otelSpanManager) StartSendSpan(ctx context.Context, eventName, dispatchID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "track.send",
		trace.WithAttributes(
			attribute.String("event.name", eventName),
			attribute.String("dispatch.id", dispatchID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartDescriptorSpan(ctx context.Context, typeCode string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "track.request",
		trace.WithAttributes(attribute.String("event.type", typeCode)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
