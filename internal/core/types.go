package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or grid level.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle status reported by the exchange.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// OrderRequest is a limit order submission.
type OrderRequest struct {
	ContractID    string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

// OrderResult is the exchange response to a placement attempt.
type OrderResult struct {
	Success      bool
	OrderID      string
	ErrorMessage string
}

// Order is a resting order as reported by the exchange.
type Order struct {
	OrderID   string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	CreatedAt time.Time
}

// OrderUpdate is an order stream event.
type OrderUpdate struct {
	ContractID string
	OrderID    string
	Status     OrderStatus
	FilledSize decimal.Decimal
	Price      decimal.Decimal
}

// OrderUpdateCallback receives order stream events.
type OrderUpdateCallback func(update *OrderUpdate)
