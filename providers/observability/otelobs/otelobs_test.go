package otelobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aigohq/aigo/providers/observability"
	"github.com/aigohq/aigo/providers/observability/otelobs"
)

func TestStartSpan_RecordsNameAttributesAndError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	obs := otelobs.New(otelobs.WithTracerProvider(tracerProvider))

	_, span := obs.StartSpan(context.Background(), "stream.decode", observability.String("provider", "bedrock"))
	span.SetAttributes(observability.Int("chunk_count", 3))
	span.RecordError(errors.New("decode failed"))
	span.End()

	require.NoError(t, tracerProvider.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "stream.decode", spans[0].Name)
	assert.NotEmpty(t, spans[0].Events)
}

func TestCounter_AddIsVisibleToReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs := otelobs.New(otelobs.WithMeterProvider(meterProvider))

	counter := obs.Counter("aigo_stream_frames_total")
	counter.Add(context.Background(), 1)
	counter.Add(context.Background(), 4)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &data))
	require.Len(t, data.ScopeMetrics, 1)
	require.Len(t, data.ScopeMetrics[0].Metrics, 1)
	assert.Equal(t, "aigo_stream_frames_total", data.ScopeMetrics[0].Metrics[0].Name)
}
