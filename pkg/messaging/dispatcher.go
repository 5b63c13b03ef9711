package messaging

import (
	"context"
	"sync"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/logging"
	"github.com/erain9/tradesim/pkg/otel"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Dispatcher is a core.Listener that hands executions to a MessageSender from
// a background worker, so a slow transport never holds the product lock.
type Dispatcher struct {
	sender  MessageSender
	logger  zerolog.Logger
	metrics *otel.OrderBookMetrics
	queue   chan *MatchMessage
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewDispatcher starts the worker. buffer bounds how many messages may wait;
// when it is full new executions are dropped, logged and counted in the
// orderbook.match_messages.dropped metric.
func NewDispatcher(sender MessageSender, buffer int, logger zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	d := &Dispatcher{
		sender:  sender,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		metrics: otel.GetOrderBookMetrics(),
		queue:   make(chan *MatchMessage, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, span := otel.StartOrderSpan(context.Background(), otel.SpanSendMatch,
			attribute.String(otel.AttributeProduct, msg.Product),
			attribute.String(otel.AttributeOrderID, msg.AggressorOrderID),
		)
		if err := d.sender.SendMatchMessage(ctx, msg); err != nil {
			span.SetStatus(codes.Error, err.Error())
			d.logger.Error().Err(err).
				Str("product", msg.Product).
				Str("aggressor_order_id", msg.AggressorOrderID).
				Str("resting_order_id", msg.RestingOrderID).
				Msg("Failed to send match message")
		}
		span.End()
	}
}

// OnExecution implements core.Listener
func (d *Dispatcher) OnExecution(ctx context.Context, exec core.Execution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- NewMatchMessage(exec):
	default:
		d.dropped++
		d.metrics.RecordMatchMessageDropped(ctx, exec.Product)
		logger := logging.FromContext(ctx)
		logger.Warn().
			Str("product", exec.Product).
			Uint64("dropped", d.dropped).
			Msg("Match message queue full, dropping")
	}
}

// OnTopOfBook implements core.Listener
func (d *Dispatcher) OnTopOfBook(context.Context, core.TopOfBook) {}

// Dropped returns how many messages were discarded because the queue was full
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting executions and waits for queued messages to be sent
// or for ctx to expire, then closes the sender.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.logger.Warn().Msg("Shutdown deadline reached before match queue drained")
		return ctx.Err()
	}
	return d.sender.Close()
}
