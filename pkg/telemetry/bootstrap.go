package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// BootstrapConfig names the service for the resulting resource attributes
// and carries the pluggable exporter/reader pair. Either may be left nil,
// in which case that signal is simply never collected — the rest of the
// Telemetry still operates against the real SDK provider, just with no
// pipeline attached to it.
type BootstrapConfig struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter receives spans in batches when set.
	TraceExporter sdktrace.SpanExporter
	// TraceSampleRate is clamped to [0,1]; 0 (the zero value) samples
	// nothing, matching the conservative default for an embedded library.
	TraceSampleRate float64

	// MetricReader is polled or pushed to when set (Prometheus, OTLP, stdout).
	MetricReader sdkmetric.Reader
}

// Bootstrap builds a real (non-no-op) OpenTelemetry SDK provider pair for
// New, returning a shutdown func that flushes and releases the configured
// exporter/reader. Grounded on the teacher's observability.Init: a
// resource carrying service identity, a sampler derived from
// TraceSampleRate, and a meter/tracer provider wired to whatever exporter
// the caller supplied.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (trace.TracerProvider, metric.MeterProvider, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	var tp trace.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.TraceSampleRate)),
	)
	if cfg.TraceExporter != nil {
		real := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.TraceSampleRate)),
			sdktrace.WithBatcher(cfg.TraceExporter),
		)
		tp = real
		shutdowns = append(shutdowns, real.Shutdown)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.MetricReader))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	shutdowns = append(shutdowns, mp.Shutdown)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return tp, mp, shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}
