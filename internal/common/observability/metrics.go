package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Observability bundles the otel meter and tracer used by the courier.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	searchCounter  otelmetric.Int64Counter
	searchDuration otelmetric.Float64Histogram
}

// New wires a prometheus-backed meter provider and an in-process tracer
// provider. Exporter failures leave a usable tracer and no-op metrics.
func New(serviceName string, log *zap.Logger) *Observability {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	obs := &Observability{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", zap.Error(err))
		return obs
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	searchCounter, _ := meter.Int64Counter(
		"courier.searches",
		otelmetric.WithDescription("Number of search invocations"),
	)

	searchDuration, _ := meter.Float64Histogram(
		"courier.search.duration",
		otelmetric.WithDescription("Search invocation duration"),
		otelmetric.WithUnit("ms"),
	)

	obs.meterProvider = provider
	obs.meter = meter
	obs.searchCounter = searchCounter
	obs.searchDuration = searchDuration
	return obs
}

// StartSpan opens a span named after the courier stage. A nil receiver
// returns a non-recording span so callers never branch.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordSearch(ctx context.Context, route, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", status),
	)
	if o.searchCounter != nil {
		o.searchCounter.Add(ctx, 1, attrs)
	}
	if o.searchDuration != nil {
		o.searchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
