// Package telemetry implements core.Telemetry on top of the OpenTelemetry
// SDK, grounded on the teacher's telemetry/otel.go OTelProvider: same
// OTLP/HTTP exporter setup, the same name-pattern heuristic for routing
// RecordMetric calls to the right instrument kind, and the same span
// wrapper shape. Trimmed of the teacher's diagnostic logging and the
// gomind-framework-specific shutdown bookkeeping this service doesn't need.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ridetrace/itinerary-coordinator/core"
)

// Names of the three metrics this service records (spec.md §6 operational
// visibility: job duration, status transitions, accrued cost).
const (
	MetricJobDuration   = "itinerary.job.duration_seconds"
	MetricJobTransition = "itinerary.job.transitions"
	MetricCostRecorded  = "itinerary.cost.recorded"
)

// Provider implements core.Telemetry with OpenTelemetry, exporting traces
// and metrics over OTLP/HTTP.
type Provider struct {
	tracer         trace.Tracer
	instruments    *instruments
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	mu       sync.RWMutex
	shutdown bool
}

// NewProvider builds a Provider. endpoint is an OTLP/HTTP collector address
// (host:port, no scheme); an empty endpoint defaults to localhost:4318.
func NewProvider(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name required")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	ctx := context.Background()

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", serviceName),
	)

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter for %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:         tp.Tracer("itinerary-coordinator"),
		instruments:    newInstruments(mp.Meter("itinerary-coordinator")),
		traceProvider:  tp,
		metricProvider: mp,
	}, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down || p.tracer == nil {
		return ctx, &noOpSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry. It routes by name substring: the
// "duration"/"seconds" family records to a histogram, everything else
// (transition counts, recorded cost) to a monotonic counter — the same
// heuristic as the teacher's OTelProvider.RecordMetric.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down {
		return
	}

	var attrs []attribute.KeyValue
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if strings.Contains(name, "duration") || strings.Contains(name, "seconds") {
		p.instruments.recordHistogram(ctx, name, value, metric.WithAttributes(attrs...))
		return
	}
	p.instruments.addCounter(ctx, name, int64(value), metric.WithAttributes(attrs...))
}

// Shutdown flushes and closes the trace/metric providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	p.mu.Unlock()

	var errs []error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.metricProvider != nil {
		if err := p.metricProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry: shutdown: %v", errs)
	}
	return nil
}

type noOpSpan struct{}

func (s *noOpSpan) End()                                       {}
func (s *noOpSpan) SetAttribute(key string, value interface{}) {}
func (s *noOpSpan) RecordError(err error)                      {}

type otelSpan struct{ span trace.Span }

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
