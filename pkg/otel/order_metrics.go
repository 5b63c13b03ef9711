package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	orderBookMetrics     *OrderBookMetrics
	orderBookMetricsOnce sync.Once
)

// OrderBookMetrics holds metrics for order book operations
type OrderBookMetrics struct {
	ordersTotal    metric.Int64Counter
	matchesTotal   metric.Int64Counter
	tradedQuantity metric.Int64Counter
	rejectedTotal  metric.Int64Counter
	canceledTotal  metric.Int64Counter
	droppedTotal   metric.Int64Counter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton. Instruments are
// created from the global meter provider the first time it is called.
func GetOrderBookMetrics() *OrderBookMetrics {
	orderBookMetricsOnce.Do(func() {
		orderBookMetrics = NewOrderBookMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	})
	return orderBookMetrics
}

// NewOrderBookMetrics creates the instruments on meter
func NewOrderBookMetrics(meter metric.Meter) *OrderBookMetrics {
	m := &OrderBookMetrics{}
	m.ordersTotal, _ = meter.Int64Counter(
		"orderbook.orders.total",
		metric.WithDescription("Total number of orders accepted"),
		metric.WithUnit("{order}"),
	)
	m.matchesTotal, _ = meter.Int64Counter(
		"orderbook.matches.total",
		metric.WithDescription("Total number of matches emitted"),
		metric.WithUnit("{match}"),
	)
	m.tradedQuantity, _ = meter.Int64Counter(
		"orderbook.traded_quantity.total",
		metric.WithDescription("Total quantity traded"),
		metric.WithUnit("{unit}"),
	)
	m.rejectedTotal, _ = meter.Int64Counter(
		"orderbook.fok_rejected.total",
		metric.WithDescription("Fill-or-kill orders killed for lack of liquidity"),
		metric.WithUnit("{order}"),
	)
	m.canceledTotal, _ = meter.Int64Counter(
		"orderbook.canceled.total",
		metric.WithDescription("Orders canceled"),
		metric.WithUnit("{order}"),
	)
	m.droppedTotal, _ = meter.Int64Counter(
		"orderbook.match_messages.dropped",
		metric.WithDescription("Match messages discarded because the trade-out queue was full"),
		metric.WithUnit("{message}"),
	)
	return m
}

// RecordOrder counts an accepted order by resulting status
func (m *OrderBookMetrics) RecordOrder(ctx context.Context, product, side, status string) {
	if m.ordersTotal == nil {
		return
	}
	m.ordersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order.product", product),
		attribute.String("order.side", side),
		attribute.String("order.status", status),
	))
}

// RecordMatches counts matches and the quantity they traded
func (m *OrderBookMetrics) RecordMatches(ctx context.Context, product string, count, quantity int64) {
	if m.matchesTotal == nil || m.tradedQuantity == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("order.product", product))
	m.matchesTotal.Add(ctx, count, attrs)
	m.tradedQuantity.Add(ctx, quantity, attrs)
}

// RecordRejected counts a killed fill-or-kill order
func (m *OrderBookMetrics) RecordRejected(ctx context.Context, product string) {
	if m.rejectedTotal == nil {
		return
	}
	m.rejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("order.product", product)))
}

// RecordCanceled counts a canceled order
func (m *OrderBookMetrics) RecordCanceled(ctx context.Context, product string) {
	if m.canceledTotal == nil {
		return
	}
	m.canceledTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("order.product", product)))
}

// RecordMatchMessageDropped counts a match message lost before reaching the transport
func (m *OrderBookMetrics) RecordMatchMessageDropped(ctx context.Context, product string) {
	if m.droppedTotal == nil {
		return
	}
	m.droppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("order.product", product)))
}
