package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// TradeKind records how a position event came to be.
type TradeKind string

const (
	TradeKindBought TradeKind = "bought"
	TradeKindSold   TradeKind = "sold"
)

// OrderRequest is an inbound order as submitted by an authenticated caller.
type OrderRequest struct {
	Symbol   string    `json:"symbol"`
	Quantity int64     `json:"quantity"`
	Side     OrderSide `json:"side"`
}

// PositionEvent is one append-only ledger row recording a single executed
// buy or sell. Quantity is signed: positive for shares acquired, negative
// for shares disposed. Rows are immutable once written; the current holding
// of a symbol is the sum of signed quantities across all events for the
// (user, symbol) pair.
type PositionEvent struct {
	ID         int64     `json:"id"`
	UserID     UserID    `json:"-"`
	Symbol     string    `json:"symbol"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  Cents     `json:"unit_price"`
	Kind       TradeKind `json:"kind"`
	ExecutedOn time.Time `json:"executed_on"`
	CreatedAt  time.Time `json:"-"`
}

// Holding is the derived aggregate position of one symbol for one user.
type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Quote is the current market price for a symbol as reported by the price
// oracle.
type Quote struct {
	Symbol    string    `json:"symbol"`
	UnitPrice Cents     `json:"price"`
	At        time.Time `json:"at"`
}

// TradeConfirmation is returned to the caller after a committed order.
type TradeConfirmation struct {
	OrderID        string    `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Side           OrderSide `json:"side"`
	Quantity       int64     `json:"quantity"`
	UnitPrice      Cents     `json:"unit_price"`
	TotalCost      Cents     `json:"total_cost"`
	NewBalance     Cents     `json:"new_balance"`
	UpdatedHolding int64     `json:"updated_holding"`
	ExecutedOn     time.Time `json:"executed_on"`
}

// DepositConfirmation is returned after a committed cash deposit. Deposits
// produce no position event.
type DepositConfirmation struct {
	Amount     Cents `json:"amount"`
	NewBalance Cents `json:"new_balance"`
}
