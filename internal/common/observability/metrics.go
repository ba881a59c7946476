package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"recommendation-engine/internal/common/config"
	"recommendation-engine/internal/common/logger"
)

// Observability owns the OpenTelemetry meter and tracer providers for the process.
type Observability struct {
	meterProvider   *metric.MeterProvider
	tracing         *tracing
	meter           otelmetric.Meter
	tracer          trace.Tracer
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
}

// New wires the prometheus exporter and, when enabled, the jaeger trace exporter.
// Failures degrade to no-op instruments.
func New(cfg config.ObservabilityConfig, log logger.Logger) *Observability {
	o := NewNoop()

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
	} else {
		provider := metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(provider)
		o.meterProvider = provider
		o.meter = provider.Meter(cfg.ServiceName)
	}

	if cfg.TracingEnabled {
		t, err := newTracing(cfg.ServiceName, cfg.JaegerEndpoint)
		if err != nil {
			log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err})
		} else {
			o.tracing = t
			o.tracer = t.provider.Tracer(cfg.ServiceName)
		}
	}

	o.initInstruments()
	return o
}

// NewNoop returns an Observability whose instruments record nothing.
func NewNoop() *Observability {
	o := &Observability{
		meter:  metricnoop.NewMeterProvider().Meter("noop"),
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
	}
	o.initInstruments()
	return o
}

func (o *Observability) initInstruments() {
	o.requestCounter, _ = o.meter.Int64Counter(
		"recommender.requests",
		otelmetric.WithDescription("Number of service operations processed"),
	)
	o.requestDuration, _ = o.meter.Float64Histogram(
		"recommender.duration",
		otelmetric.WithDescription("Service operation duration"),
		otelmetric.WithUnit("ms"),
	)
}

// Tracer returns the tracer used for service spans.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordRequest(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, attrs)
	}
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		_ = o.tracing.provider.Shutdown(ctx)
	}
}
