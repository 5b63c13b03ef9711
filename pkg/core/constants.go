package core

import "errors"

// TopOfBookDepth is the number of price levels published per side
const TopOfBookDepth = 5

// Errors
var (
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidSide          = errors.New("invalid side")
	ErrInvalidExpiry        = errors.New("invalid expiry")
	ErrDuplicateOrder       = errors.New("order already resting in book")
	ErrOrderProductConflict = errors.New("order id bound to a different product")
	ErrUnknownProduct       = errors.New("unknown product")
	ErrProductExists        = errors.New("product exists")
)
