package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erain9/tradesim/pkg/logging"
	"github.com/erain9/tradesim/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TopOfBook is an aggregated snapshot of the best levels of both sides
type TopOfBook struct {
	Product  string         `json:"product"`
	Bids     []LevelSummary `json:"bids"`
	Asks     []LevelSummary `json:"asks"`
	Sequence uint64         `json:"sequence"`
}

// Listener receives engine events. Calls happen while the product is locked,
// in mutation order, so implementations must return quickly.
type Listener interface {
	OnExecution(ctx context.Context, exec Execution)
	OnTopOfBook(ctx context.Context, tob TopOfBook)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are skipped
type ListenerFuncs struct {
	Execution func(ctx context.Context, exec Execution)
	TopOfBook func(ctx context.Context, tob TopOfBook)
}

// OnExecution implements Listener
func (f ListenerFuncs) OnExecution(ctx context.Context, exec Execution) {
	if f.Execution != nil {
		f.Execution(ctx, exec)
	}
}

// OnTopOfBook implements Listener
func (f ListenerFuncs) OnTopOfBook(ctx context.Context, tob TopOfBook) {
	if f.TopOfBook != nil {
		f.TopOfBook(ctx, tob)
	}
}

// book is the pair of sides for one product plus the states of its orders
type book struct {
	mu       sync.RWMutex
	product  string
	bids     *OrderBookSide
	asks     *OrderBookSide
	states   map[string]*OrderState
	sequence uint64
}

func newBook(product string, clock TimestampProvider) *book {
	return &book{
		product: product,
		bids:    NewOrderBookSide(Buy, BidComparator, clock),
		asks:    NewOrderBookSide(Sell, AskComparator, clock),
		states:  make(map[string]*OrderState),
	}
}

func (b *book) side(s Side) *OrderBookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *book) depth(n int) TopOfBook {
	return TopOfBook{
		Product:  b.product,
		Bids:     b.bids.Depth(n),
		Asks:     b.asks.Depth(n),
		Sequence: b.sequence,
	}
}

// EngineOption configures a MatchingEngine
type EngineOption func(*MatchingEngine)

// WithClock sets the timestamp source for matches
func WithClock(clock TimestampProvider) EngineOption {
	return func(e *MatchingEngine) { e.clock = clock }
}

// WithIDProvider sets the order id source
func WithIDProvider(ids IDProvider) EngineOption {
	return func(e *MatchingEngine) { e.ids = ids }
}

// WithListener registers a listener; may be given more than once
func WithListener(l Listener) EngineOption {
	return func(e *MatchingEngine) { e.listeners = append(e.listeners, l) }
}

// WithProducts pre-registers tradable products
func WithProducts(symbols ...string) EngineOption {
	return func(e *MatchingEngine) {
		for _, s := range symbols {
			if _, ok := e.books[s]; !ok {
				e.books[s] = newBook(s, e.clock)
			}
		}
	}
}

// WithAutoCreateProducts opens a book on the first order for an unknown product
func WithAutoCreateProducts(enabled bool) EngineOption {
	return func(e *MatchingEngine) { e.autoCreate = enabled }
}

// MatchingEngine owns every product's book and all order states.
// Operations on one product are serialised; different products proceed in parallel.
type MatchingEngine struct {
	mu         sync.RWMutex
	books      map[string]*book
	store      *OrderStore
	clock      TimestampProvider
	ids        IDProvider
	listeners  []Listener
	autoCreate bool
}

// NewMatchingEngine creates an engine with the given options
func NewMatchingEngine(opts ...EngineOption) *MatchingEngine {
	e := &MatchingEngine{
		books: make(map[string]*book),
		store: NewOrderStore(),
		clock: NewMonotonicClock(),
		ids:   UUIDProvider{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddProduct opens an empty book for symbol
func (e *MatchingEngine) AddProduct(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrUnknownProduct)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.books[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrProductExists, symbol)
	}
	e.books[symbol] = newBook(symbol, e.clock)
	return nil
}

// HasProduct reports whether symbol has a book
func (e *MatchingEngine) HasProduct(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.books[symbol]
	return ok
}

// Products returns the tradable symbols in sorted order
func (e *MatchingEngine) Products() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := make([]string, 0, len(e.books))
	for s := range e.books {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func (e *MatchingEngine) book(symbol string) (*book, bool) {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok || !e.autoCreate || symbol == "" {
		return b, ok
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[symbol]; !ok {
		b = newBook(symbol, e.clock)
		e.books[symbol] = b
	}
	return b, true
}

// CreateOrder assigns an id, matches the order against the opposite side and
// rests any remainder of a good-till-cancel order on its own side.
func (e *MatchingEngine) CreateOrder(ctx context.Context, req OrderRequest) (OrderState, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCreateOrder,
		attribute.String(otel.AttributeProduct, req.Product),
		attribute.String(otel.AttributeOrderSide, req.Side.String()),
		attribute.String(otel.AttributeOrderExpiry, req.Expiry.String()),
		attribute.Int64(otel.AttributeOrderQuantity, req.Quantity),
		attribute.String(otel.AttributeOrderPrice, req.Price.String()),
	)
	defer span.End()

	logger := logging.FromContext(ctx).With().Str("product", req.Product).Logger()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return OrderState{}, err
	}

	b, ok := e.book(req.Product)
	if !ok {
		span.SetStatus(codes.Error, "unknown product")
		return OrderState{}, fmt.Errorf("%w: %s", ErrUnknownProduct, req.Product)
	}

	id := e.ids.NextID()
	if err := e.store.AddOrderIDToProduct(id, req.Product); err != nil {
		logger.Error().Err(err).Str("order_id", id).Msg("Order id routing conflict")
		span.SetStatus(codes.Error, err.Error())
		return OrderState{}, err
	}
	span.SetAttributes(attribute.String(otel.AttributeOrderID, id))

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.states[id]; exists {
		err := fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
		logger.Error().Err(err).Msg("Order id issued twice")
		span.SetStatus(codes.Error, err.Error())
		return OrderState{}, err
	}

	state := &OrderState{
		Order: Order{
			ID:        id,
			Product:   req.Product,
			Side:      req.Side,
			Price:     req.Price,
			Quantity:  req.Quantity,
			Expiry:    req.Expiry,
			Account:   req.Account,
			CreatedAt: time.Now(),
		},
	}

	opposite := b.side(req.Side.Opposite())
	var matches []Match
	if req.Expiry == FillOrKill {
		var filled bool
		matches, filled = opposite.MatchMustFillOrder(id, req.Quantity, req.Price)
		if !filled {
			state.Status = StatusRejected
			b.states[id] = state
			otel.GetOrderBookMetrics().RecordRejected(ctx, req.Product)
			logger.Debug().Str("order_id", id).Int64("quantity", req.Quantity).Msg("Fill-or-kill order killed")
			return *state, nil
		}
	} else {
		_, matches = opposite.MatchOrder(id, req.Quantity, req.Price)
	}

	e.applyMatches(ctx, b, state, matches)

	if req.Expiry == GoodTillCancel && state.Order.Remaining() > 0 {
		if err := b.side(req.Side).AddOrder(id, req.Quantity, state.Order.Filled, req.Price); err != nil {
			logger.Error().Err(err).Str("order_id", id).Msg("Failed to rest order")
			span.SetStatus(codes.Error, err.Error())
			return OrderState{}, err
		}
	}

	state.Status = statusFor(state.Order.Quantity, state.Order.Filled)
	b.states[id] = state

	otel.GetOrderBookMetrics().RecordOrder(ctx, req.Product, req.Side.String(), string(state.Status))
	span.SetAttributes(
		attribute.String(otel.AttributeOrderStatus, string(state.Status)),
		attribute.Int64(otel.AttributeExecutedQuantity, state.Order.Filled),
		attribute.Int(otel.AttributeTradeCount, len(matches)),
	)

	e.publishTopOfBook(ctx, b)

	logger.Debug().
		Str("order_id", id).
		Str("status", string(state.Status)).
		Int64("filled", state.Order.Filled).
		Int("matches", len(matches)).
		Msg("Order processed")

	return *state, nil
}

// applyMatches updates the aggressor and every resting counterpart, then
// notifies listeners of each execution.
func (e *MatchingEngine) applyMatches(ctx context.Context, b *book, aggressor *OrderState, matches []Match) {
	if len(matches) == 0 {
		return
	}

	_, span := otel.StartOrderSpan(ctx, otel.SpanMatchOrder,
		attribute.String(otel.AttributeOrderID, aggressor.Order.ID),
		attribute.Int(otel.AttributeTradeCount, len(matches)),
	)
	defer span.End()

	var traded int64
	for _, m := range matches {
		aggressor.Order.Filled += m.Quantity
		traded += m.Quantity

		exec := Execution{
			Product:          b.product,
			AggressorSide:    aggressor.Order.Side,
			AggressorAccount: aggressor.Order.Account,
			Match:            m,
		}
		if resting, ok := b.states[m.RestingOrderID]; ok {
			resting.Order.Filled += m.Quantity
			resting.Status = statusFor(resting.Order.Quantity, resting.Order.Filled)
			exec.RestingAccount = resting.Order.Account
		}

		for _, l := range e.listeners {
			l.OnExecution(ctx, exec)
		}
	}

	otel.GetOrderBookMetrics().RecordMatches(ctx, b.product, int64(len(matches)), traded)
}

func (e *MatchingEngine) publishTopOfBook(ctx context.Context, b *book) {
	b.sequence++
	if len(e.listeners) == 0 {
		return
	}
	tob := b.depth(TopOfBookDepth)
	for _, l := range e.listeners {
		l.OnTopOfBook(ctx, tob)
	}
}

// CancelOrder removes a live order from its book. It returns false when the
// id is unknown or the order already reached a terminal status.
func (e *MatchingEngine) CancelOrder(ctx context.Context, orderID string) (OrderState, bool) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeOrderID, orderID),
	)
	defer span.End()

	product, ok := e.store.ProductID(orderID)
	if !ok {
		return OrderState{}, false
	}
	b, ok := e.book(product)
	if !ok {
		return OrderState{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[orderID]
	if !ok || state.Status.Terminal() {
		return OrderState{}, false
	}

	if !b.side(state.Order.Side).RemoveOrder(orderID) {
		logger := logging.FromContext(ctx)
		logger.Error().
			Str("product", product).
			Str("order_id", orderID).
			Str("status", string(state.Status)).
			Msg("Live order missing from its book side")
		span.SetStatus(codes.Error, "live order missing from book")
		return OrderState{}, false
	}

	state.Status = StatusCanceled
	otel.GetOrderBookMetrics().RecordCanceled(ctx, product)
	e.publishTopOfBook(ctx, b)

	return *state, true
}

// GetOrder returns the current state of an order
func (e *MatchingEngine) GetOrder(orderID string) (OrderState, bool) {
	product, ok := e.store.ProductID(orderID)
	if !ok {
		return OrderState{}, false
	}
	b, ok := e.book(product)
	if !ok {
		return OrderState{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[orderID]
	if !ok {
		return OrderState{}, false
	}
	return *state, true
}

// TopOfBook returns the five best levels of each side of a product
func (e *MatchingEngine) TopOfBook(product string) (TopOfBook, error) {
	return e.Depth(product, TopOfBookDepth)
}

// Depth returns up to n best levels of each side of a product
func (e *MatchingEngine) Depth(product string, n int) (TopOfBook, error) {
	e.mu.RLock()
	b, ok := e.books[product]
	e.mu.RUnlock()
	if !ok {
		return TopOfBook{}, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.depth(n), nil
}
