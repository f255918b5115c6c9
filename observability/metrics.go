// Package observability provides OpenTelemetry metrics and tracing for the
// dispatch pipeline, with no-op variants for when they are disabled.
package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/c0deZ3R0/go-track-kit"

// Recorder records pipeline metrics.
// Use NewRecorder() for OTel metrics or NoopRecorder{} when disabled.
type Recorder interface {
	// RecordDescriptor records one outbound collection request and its outcome.
	RecordDescriptor(ctx context.Context, typeCode string, duration time.Duration, err error)

	// RecordSend records a logical send and how many requests it expanded into.
	RecordSend(ctx context.Context, eventName string, descriptors int)

	// RecordResolution records a domain lookup. cached is true when no fetch was needed.
	RecordResolution(ctx context.Context, cached bool, err error)
}

type otelRecorder struct {
	descriptorsSent   metric.Int64Counter
	descriptorsFailed metric.Int64Counter
	descriptorLatency metric.Float64Histogram
	sends             metric.Int64Counter
	resolutions       metric.Int64Counter
}

// NewRecorder returns a Recorder backed by provider, or by the global OTel
// meter provider when provider is nil. If instrument creation fails a
// no-op recorder is returned.
func NewRecorder(provider metric.MeterProvider) Recorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	r, err := newOtelRecorder(provider.Meter(instrumentationName))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopRecorder{}
	}
	return r
}

func newOtelRecorder(meter metric.Meter) (*otelRecorder, error) {
	sent, err := meter.Int64Counter("track.descriptors.sent",
		metric.WithDescription("Number of collection requests that completed with a 2xx status"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("track.descriptors.failed",
		metric.WithDescription("Number of collection requests that failed"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("track.descriptor.latency_ms",
		metric.WithDescription("Collection request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sends, err := meter.Int64Counter("track.sends",
		metric.WithDescription("Number of logical events sent"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter("track.domain.resolutions",
		metric.WithDescription("Number of domain lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		descriptorsSent:   sent,
		descriptorsFailed: failed,
		descriptorLatency: latency,
		sends:             sends,
		resolutions:       resolutions,
	}, nil
}

func (r *otelRecorder) RecordDescriptor(ctx context.Context, typeCode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("type", typeCode))
	r.descriptorLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		r.descriptorsFailed.Add(ctx, 1, attrs)
		return
	}
	r.descriptorsSent.Add(ctx, 1, attrs)
}

func (r *otelRecorder) RecordSend(ctx context.Context, eventName string, descriptors int) {
	r.sends.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.Int("descriptors", descriptors),
	))
}

func (r *otelRecorder) RecordResolution(ctx context.Context, cached bool, err error) {
	r.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("cached", cached),
		attribute.Bool("success", err == nil),
	))
}
