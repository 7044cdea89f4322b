// Package telemetry sets up OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Settings selects the exporter endpoint and describes the service.
type Settings struct {
	Endpoint    string
	ServiceName string
	Environment string
	// SampleRatio is the fraction of new traces to keep, 0..1.
	SampleRatio float64
}

// Init installs a global tracer provider exporting over OTLP/HTTP. Without an
// endpoint it leaves the no-op provider in place. The returned function
// flushes and stops the exporter.
func Init(ctx context.Context, s Settings) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if s.Endpoint == "" {
		log.Printf("INFO: OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(s.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.ServiceName),
		attribute.String("deployment.environment", s.Environment),
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		log.Printf("WARNING: otel resource: %v", err)
		res = resource.NewSchemaless(attrs...)
	}

	ratio := s.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Printf("INFO: exporting traces to %s", s.Endpoint)
	return tp.Shutdown, nil
}
