// Package mock provides a scripted exchange for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"grid_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Exchange implements core.IExchange with fully scripted behavior.
type Exchange struct {
	name           string
	mu             sync.RWMutex
	orders         map[string]*core.Order
	orderIDCounter int64
	clientOrderMap map[string]string

	bid decimal.Decimal
	ask decimal.Decimal

	tickDecimals int32

	callback core.OrderUpdateCallback

	connected bool

	// Failure injection
	failPlace       bool
	failCancel      bool
	failBidAsk      bool
	rejectPlacement bool
}

// NewExchange creates a mock with a 2000/2001 book and 2-decimal ticks.
func NewExchange(name string) *Exchange {
	return &Exchange{
		name:           name,
		orders:         make(map[string]*core.Order),
		clientOrderMap: make(map[string]string),
		orderIDCounter: 1000,
		bid:            decimal.NewFromInt(2000),
		ask:            decimal.NewFromInt(2001),
		tickDecimals:   2,
	}
}

// SetBook scripts the top of book.
func (m *Exchange) SetBook(bid, ask decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bid, m.ask = bid, ask
}

// FailPlaceOrders makes every PlaceOrder return an error.
func (m *Exchange) FailPlaceOrders(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlace = fail
}

// RejectPlacements makes every PlaceOrder return success=false.
func (m *Exchange) RejectPlacements(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectPlacement = reject
}

// FailCancels makes every CancelOrder return an error.
func (m *Exchange) FailCancels(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCancel = fail
}

// FailBidAsk makes FetchBestBidAsk return an error.
func (m *Exchange) FailBidAsk(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBidAsk = fail
}

func (m *Exchange) GetName() string { return m.name }

func (m *Exchange) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *Exchange) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Connected reports whether Connect was called without a later Disconnect.
func (m *Exchange) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Exchange) FetchBestBidAsk(ctx context.Context, contractID string) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failBidAsk {
		return decimal.Zero, decimal.Zero, fmt.Errorf("mock: bid/ask unavailable")
	}
	if !m.bid.IsPositive() || !m.ask.IsPositive() || m.bid.GreaterThanOrEqual(m.ask) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("mock: crossed or empty book %s/%s", m.bid, m.ask)
	}
	return m.bid, m.ask, nil
}

func (m *Exchange) RoundToTick(price decimal.Decimal) decimal.Decimal {
	return price.Round(m.tickDecimals)
}

func (m *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPlace {
		return nil, fmt.Errorf("mock: placement failure injected")
	}
	if m.rejectPlacement {
		return &core.OrderResult{Success: false, ErrorMessage: "mock: rejected"}, nil
	}

	// Idempotent on client order id.
	if req.ClientOrderID != "" {
		if id, ok := m.clientOrderMap[req.ClientOrderID]; ok {
			return &core.OrderResult{Success: true, OrderID: id}, nil
		}
	}

	m.orderIDCounter++
	id := fmt.Sprintf("mock-%d", m.orderIDCounter)
	m.orders[id] = &core.Order{
		OrderID: id,
		Side:    req.Side,
		Price:   req.Price,
		Size:    req.Quantity,
	}
	if req.ClientOrderID != "" {
		m.clientOrderMap[req.ClientOrderID] = id
	}
	return &core.OrderResult{Success: true, OrderID: id}, nil
}

func (m *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCancel {
		return fmt.Errorf("mock: cancel failure injected")
	}
	if _, ok := m.orders[orderID]; !ok {
		return fmt.Errorf("mock: unknown order %s", orderID)
	}
	delete(m.orders, orderID)
	return nil
}

func (m *Exchange) GetActiveOrders(ctx context.Context, contractID string) ([]*core.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := make([]*core.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	return orders, nil
}

func (m *Exchange) SubscribeOrderUpdates(callback core.OrderUpdateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

// FillOrder simulates a full fill of a resting order: the order leaves the
// book and the subscribed callback fires synchronously.
func (m *Exchange) FillOrder(orderID string) error {
	m.mu.Lock()
	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("mock: unknown order %s", orderID)
	}
	delete(m.orders, orderID)
	callback := m.callback
	m.mu.Unlock()

	if callback != nil {
		callback(&core.OrderUpdate{
			OrderID:    orderID,
			Status:     core.OrderStatusFilled,
			FilledSize: order.Size,
			Price:      order.Price,
		})
	}
	return nil
}

// OrderCount returns how many orders are resting on the mock book.
func (m *Exchange) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}
