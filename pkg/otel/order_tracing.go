package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanCreateOrder  = "create_order"
	SpanCancelOrder  = "cancel_order"
	SpanMatchOrder   = "match_order"
	SpanSendMatch    = "send_match"
	SpanPublishBook  = "publish_top_of_book"
	SpanHandleRemote = "handle_request"

	// Attribute keys
	AttributeProduct          = "order.product"
	AttributeOrderID          = "order.id"
	AttributeOrderSide        = "order.side"
	AttributeOrderExpiry      = "order.expiry"
	AttributeOrderQuantity    = "order.quantity"
	AttributeOrderPrice       = "order.price"
	AttributeOrderStatus      = "order.status"
	AttributeExecutedQuantity = "order.executed_quantity"
	AttributeTradeCount       = "trade.count"
)

// StartOrderSpan starts a new span for order processing. When tracing is not
// initialised the span returned is the no-op span carried by ctx.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	switch name {
	case SpanCreateOrder, SpanCancelOrder, SpanHandleRemote:
		tracer = GetOrderServiceTracer()
	default:
		tracer = GetMatchingEngineTracer()
	}

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
