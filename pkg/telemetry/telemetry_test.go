package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/majormartintibor/opossum/pkg/telemetry"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewWithNilProvidersUsesNoop(t *testing.T) {
	tel, err := telemetry.New(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer())
}

func TestRecordAppendDoesNotPanicOnSuccessOrFailure(t *testing.T) {
	tel, err := telemetry.New(nil, nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		tel.RecordAppend(context.Background(), 0.001, 3, nil)
		tel.RecordAppend(context.Background(), 0.002, 0, errors.New("boom"))
	})
}

func TestRecordProjectionCycleDoesNotPanic(t *testing.T) {
	tel, err := telemetry.New(nil, nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		tel.RecordProjectionCycle(context.Background(), "CourseShortInfo", nil)
		tel.RecordProjectionCycle(context.Background(), "CourseShortInfo", errors.New("apply failed"))
	})
}

func TestStartSpanAndEndSpanRoundTrip(t *testing.T) {
	tel, err := telemetry.New(nil, nil)
	require.NoError(t, err)

	_, span := tel.StartSpan(context.Background(), "eventstore.Append")
	require.NotPanics(t, func() {
		telemetry.EndSpan(span, nil)
	})
}

func TestBootstrapProducesARealSDKProviderPairAndShutsDownCleanly(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()

	tp, mp, shutdown, err := telemetry.Bootstrap(ctx, telemetry.BootstrapConfig{
		ServiceName:    "opossum",
		ServiceVersion: "test",
		MetricReader:   reader,
	})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, mp)

	tel, err := telemetry.New(tp, mp)
	require.NoError(t, err)
	tel.RecordAppend(ctx, 0.001, 1, nil)

	var out metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &out))
	require.NotEmpty(t, out.ScopeMetrics)

	require.NoError(t, shutdown(ctx))
}
