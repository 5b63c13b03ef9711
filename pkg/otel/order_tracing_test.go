package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartOrderSpanWithoutTracer(t *testing.T) {
	ResetForTesting()

	ctx, span := StartOrderSpan(context.Background(), SpanCreateOrder)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid())

	// must be safe to use like a real span
	span.SetAttributes(attribute.String(AttributeOrderID, "1"))
	span.End()
	assert.NotNil(t, ctx)
}

func TestStartOrderSpanRecords(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() {
		ResetForTesting()
		_ = tp.Shutdown(context.Background())
	}()

	require.NoError(t, InitForTesting(tp.Tracer("test")))

	_, span := StartOrderSpan(context.Background(), SpanMatchOrder,
		attribute.String(AttributeProduct, "ACME"),
		attribute.Int(AttributeTradeCount, 2),
	)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanMatchOrder, ended[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "ACME", attrs[AttributeProduct].AsString())
	assert.Equal(t, int64(2), attrs[AttributeTradeCount].AsInt64())
}

func TestOrderBookMetricsSingleton(t *testing.T) {
	m := GetOrderBookMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, GetOrderBookMetrics())

	// recording against the default no-op provider must not panic
	ctx := context.Background()
	m.RecordOrder(ctx, "ACME", "BUY", "NEW")
	m.RecordMatches(ctx, "ACME", 2, 10)
	m.RecordRejected(ctx, "ACME")
	m.RecordCanceled(ctx, "ACME")
	m.RecordMatchMessageDropped(ctx, "ACME")
}
