// Package core defines the capability interfaces the grid engine is built on.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IExchange is the exchange collaborator contract. Implementations own all
// transport, authentication and venue-specific rounding concerns.
type IExchange interface {
	GetName() string

	Connect(ctx context.Context) error
	Disconnect() error

	// FetchBestBidAsk returns the top of book. Implementations must fail
	// when bid<=0, ask<=0 or bid>=ask rather than return a crossed book.
	FetchBestBidAsk(ctx context.Context, contractID string) (bid, ask decimal.Decimal, err error)

	// RoundToTick snaps a price to the venue's minimum price increment.
	RoundToTick(price decimal.Decimal) decimal.Decimal

	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetActiveOrders(ctx context.Context, contractID string) ([]*Order, error)

	// SubscribeOrderUpdates registers the order stream callback. The callback
	// may be invoked from the exchange's own goroutines.
	SubscribeOrderUpdates(callback OrderUpdateCallback)
}

// ILogger is the structured logging contract.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IStateStore persists grid snapshots across restarts.
type IStateStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Snapshot is the persisted view of the grid: counters plus the level layout.
type Snapshot struct {
	ContractID  string          `json:"contract_id"`
	CenterPrice decimal.Decimal `json:"center_price"`
	Levels      []SnapshotLevel `json:"levels"`
	TradesCount int64           `json:"trades_count"`
	MovesCount  int64           `json:"moves_count"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	SavedAtNano int64           `json:"saved_at_nano"`
}

// SnapshotLevel is one persisted ladder rung.
type SnapshotLevel struct {
	Price      decimal.Decimal `json:"price"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderID    string          `json:"order_id,omitempty"`
	LevelIndex int             `json:"level_index"`
}
