package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents buy or sell side of the order
type Side int

// Order sides. The zero value is not a valid side.
const (
	Buy Side = iota + 1
	Sell
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is Buy or Sell
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of this side matches against
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return s
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide converts "buy"/"sell" (any case, or the single letters b/s) to a Side
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "B":
		return Buy, nil
	case "SELL", "S":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, v)
	}
}

// Expiry represents how long an order may stay in the book
type Expiry int

// Order expiries
const (
	GoodTillCancel Expiry = iota + 1 // rests until filled or canceled
	FillOrKill                       // fills completely on arrival or not at all
)

// String returns expiry as string
func (e Expiry) String() string {
	switch e {
	case GoodTillCancel:
		return "GTC"
	case FillOrKill:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether e is a known expiry
func (e Expiry) Valid() bool {
	return e == GoodTillCancel || e == FillOrKill
}

// MarshalText implements encoding.TextMarshaler
func (e Expiry) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *Expiry) UnmarshalText(text []byte) error {
	parsed, err := ParseExpiry(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseExpiry accepts the short codes and the long names
func ParseExpiry(v string) (Expiry, error) {
	normalized := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(strings.TrimSpace(v)))
	switch normalized {
	case "GTC", "GOOD_TILL_CANCEL", "GOOD_TILL_CANCELED", "GOOD_TILL_CANCELLED":
		return GoodTillCancel, nil
	case "FOK", "FILL_OR_KILL":
		return FillOrKill, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, v)
	}
}

// OrderStatus represents where an order is in its lifecycle
type OrderStatus string

// Order statuses
const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED" // fill-or-kill order that could not be filled
)

// Terminal reports whether no further transition is possible
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// statusFor derives the status of a live order from its fills
func statusFor(quantity, filled int64) OrderStatus {
	switch {
	case filled == 0:
		return StatusNew
	case filled >= quantity:
		return StatusFilled
	default:
		return StatusPartiallyFilled
	}
}

// OrderRequest carries validated primitives for a new order
type OrderRequest struct {
	Product  string
	Side     Side
	Price    fpdecimal.Decimal
	Quantity int64
	Expiry   Expiry
	Account  string
}

// Validate checks the request fields the engine relies on
func (r OrderRequest) Validate() error {
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, r.Quantity)
	}
	if r.Price.LessThanOrEqual(fpdecimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, r.Price)
	}
	if !r.Side.Valid() {
		return ErrInvalidSide
	}
	if !r.Expiry.Valid() {
		return ErrInvalidExpiry
	}
	return nil
}

// Order is a snapshot of an order owned by the engine
type Order struct {
	ID        string            `json:"id"`
	Product   string            `json:"product"`
	Side      Side              `json:"side"`
	Price     fpdecimal.Decimal `json:"price"`
	Quantity  int64             `json:"quantity"`
	Filled    int64             `json:"filled"`
	Expiry    Expiry            `json:"expiry"`
	Account   string            `json:"account,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Remaining returns the quantity still open
func (o Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// OrderState pairs an order with its lifecycle status
type OrderState struct {
	Order  Order       `json:"order"`
	Status OrderStatus `json:"status"`
}
