// Package telemetry wraps the event store and projection manager boundaries
// with OpenTelemetry spans and counters (spec §6.3 [EXPANDED]). The store
// and manager skip all instrumentation when no *Telemetry is configured
// (the nil pointer), so callers that never configure it run exactly as if
// telemetry didn't exist; New(nil, nil) builds a Telemetry on no-op
// providers. Adapted
// from the teacher's pkg/observability, trimmed to the operations this
// module actually has: Append, Read, projection Update and Rebuild — the
// teacher's command/aggregate/repository/NATS instruments have no
// counterpart here and were dropped (see DESIGN.md).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds the tracer, meter and metric instruments used around the
// store and projection boundaries. Build it with New; the zero value has no
// tracer or instruments and is not usable.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	appendDuration    metric.Float64Histogram
	eventsAppended    metric.Int64Counter
	readDuration      metric.Float64Histogram
	projectionUpdates metric.Int64Counter
	projectionErrors  metric.Int64Counter
}

// New builds a Telemetry instrumented against the given providers. Passing
// nil for either uses OpenTelemetry's no-op implementation, so New(nil, nil)
// is a safe, inert default.
func New(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) (*Telemetry, error) {
	if tracerProvider == nil {
		tracerProvider = nooptrace.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = noopmetric.NewMeterProvider()
	}

	t := &Telemetry{
		tracer: tracerProvider.Tracer("opossum/eventstore"),
		meter:  meterProvider.Meter("opossum/eventstore"),
	}

	var err error
	t.appendDuration, err = t.meter.Float64Histogram(
		"opossum.eventstore.append.duration",
		metric.WithDescription("Append operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating append.duration: %w", err)
	}

	t.eventsAppended, err = t.meter.Int64Counter(
		"opossum.eventstore.events.appended",
		metric.WithDescription("Total events appended"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating events.appended: %w", err)
	}

	t.readDuration, err = t.meter.Float64Histogram(
		"opossum.eventstore.read.duration",
		metric.WithDescription("Read operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating read.duration: %w", err)
	}

	t.projectionUpdates, err = t.meter.Int64Counter(
		"opossum.projection.updates",
		metric.WithDescription("Total projection update cycles run"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating projection.updates: %w", err)
	}

	t.projectionErrors, err = t.meter.Int64Counter(
		"opossum.projection.errors",
		metric.WithDescription("Total projection update/rebuild errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating projection.errors: %w", err)
	}

	return t, nil
}

// Tracer exposes the underlying tracer for callers that need a raw span.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordAppend records an Append call's duration and event count.
func (t *Telemetry) RecordAppend(ctx context.Context, seconds float64, eventCount int, err error) {
	attrs := []attribute.KeyValue{attribute.Bool("success", err == nil)}
	t.appendDuration.Record(ctx, seconds, metric.WithAttributes(attrs...))
	if err == nil {
		t.eventsAppended.Add(ctx, int64(eventCount), metric.WithAttributes(attrs...))
	}
}

// RecordRead records a Read call's duration.
func (t *Telemetry) RecordRead(ctx context.Context, seconds float64, err error) {
	attrs := []attribute.KeyValue{attribute.Bool("success", err == nil)}
	t.readDuration.Record(ctx, seconds, metric.WithAttributes(attrs...))
}

// RecordProjectionCycle records an Update or Rebuild cycle for projection
// name, tallying an error if the cycle failed.
func (t *Telemetry) RecordProjectionCycle(ctx context.Context, projectionName string, err error) {
	attrs := []attribute.KeyValue{attribute.String("projection", projectionName)}
	t.projectionUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		t.projectionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// StartSpan starts a span named name. The caller ends it with EndSpan,
// which records the operation's error, if any.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// EndSpan ends span, marking it errored if err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
