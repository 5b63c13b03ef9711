package core

import "github.com/nikolaydubina/fpdecimal"

// Match records one execution between an aggressor and a single resting order.
// It is created once and never modified.
type Match struct {
	AggressorOrderID string            `json:"aggressorOrderId"`
	RestingOrderID   string            `json:"restingOrderId"`
	Quantity         int64             `json:"quantity"`
	Price            fpdecimal.Decimal `json:"price"`
	Timestamp        int64             `json:"timestamp"`
}

// Execution is a Match enriched with the engine context needed downstream
type Execution struct {
	Product          string `json:"product"`
	AggressorSide    Side   `json:"aggressorSide"`
	AggressorAccount string `json:"aggressorAccount,omitempty"`
	RestingAccount   string `json:"restingAccount,omitempty"`
	Match            Match  `json:"match"`
}

// Buyer returns the account on the buying side of the execution
func (e Execution) Buyer() string {
	if e.AggressorSide == Buy {
		return e.AggressorAccount
	}
	return e.RestingAccount
}

// Seller returns the account on the selling side of the execution
func (e Execution) Seller() string {
	if e.AggressorSide == Sell {
		return e.AggressorAccount
	}
	return e.RestingAccount
}
