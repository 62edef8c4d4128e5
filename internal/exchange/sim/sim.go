// Package sim provides a random-walk simulated exchange for dry runs. It
// implements core.IExchange without touching any network: orders rest on an
// internal book and fill when the simulated price crosses them.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"grid_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Exchange is the simulated venue.
type Exchange struct {
	mu             sync.RWMutex
	price          decimal.Decimal
	spread         decimal.Decimal
	tickDecimals   int32
	orders         map[string]*core.Order
	orderIDCounter int64
	callback       core.OrderUpdateCallback
	logger         core.ILogger
	rng            *rand.Rand

	contractID string
	stepEvery  time.Duration
	volatility float64 // max fractional move per step

	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewExchange creates a simulator starting at the given price.
func NewExchange(contractID string, startPrice decimal.Decimal, logger core.ILogger) *Exchange {
	return &Exchange{
		price:          startPrice,
		spread:         startPrice.Mul(decimal.RequireFromString("0.0005")),
		tickDecimals:   2,
		orders:         make(map[string]*core.Order),
		orderIDCounter: 1,
		logger:         logger.WithField("component", "sim_exchange"),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		contractID:     contractID,
		stepEvery:      500 * time.Millisecond,
		volatility:     0.002,
	}
}

func (s *Exchange) GetName() string { return "sim" }

// Connect starts the internal price walk.
func (s *Exchange) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sim: already connected")
	}

	walkCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.walk(walkCtx)

	s.logger.Info("Simulated exchange connected", "start_price", s.price.String())
	return nil
}

// Disconnect stops the price walk. Resting orders stay on the book.
func (s *Exchange) Disconnect() error {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	return nil
}

// walk moves the price randomly and fills crossed orders.
func (s *Exchange) walk(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(s.stepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		change := (s.rng.Float64()*2 - 1) * s.volatility
		factor := decimal.NewFromFloat(1 + change)
		s.price = s.price.Mul(factor)
		crossed := s.crossedOrdersLocked()
		callback := s.callback
		s.mu.Unlock()

		for _, order := range crossed {
			s.logger.Info("Simulated fill",
				"order_id", order.OrderID, "side", order.Side, "price", order.Price.String())
			if callback != nil {
				callback(&core.OrderUpdate{
					ContractID: s.contractID,
					OrderID:    order.OrderID,
					Status:     core.OrderStatusFilled,
					FilledSize: order.Size,
					Price:      order.Price,
				})
			}
		}
	}
}

// crossedOrdersLocked removes and returns every order the price has crossed.
// Caller holds mu.
func (s *Exchange) crossedOrdersLocked() []*core.Order {
	var crossed []*core.Order
	for id, order := range s.orders {
		filled := (order.Side == core.SideBuy && s.price.LessThanOrEqual(order.Price)) ||
			(order.Side == core.SideSell && s.price.GreaterThanOrEqual(order.Price))
		if filled {
			crossed = append(crossed, order)
			delete(s.orders, id)
		}
	}
	return crossed
}

func (s *Exchange) FetchBestBidAsk(ctx context.Context, contractID string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	half := s.spread.Div(decimal.NewFromInt(2))
	bid := s.RoundToTick(s.price.Sub(half))
	ask := s.RoundToTick(s.price.Add(half))
	if !bid.IsPositive() || bid.GreaterThanOrEqual(ask) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sim: degenerate book %s/%s", bid, ask)
	}
	return bid, ask, nil
}

func (s *Exchange) RoundToTick(price decimal.Decimal) decimal.Decimal {
	return price.Round(s.tickDecimals)
}

func (s *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderIDCounter++
	id := fmt.Sprintf("sim-%d", s.orderIDCounter)
	s.orders[id] = &core.Order{
		OrderID:   id,
		Side:      req.Side,
		Price:     req.Price,
		Size:      req.Quantity,
		CreatedAt: time.Now(),
	}
	return &core.OrderResult{Success: true, OrderID: id}, nil
}

func (s *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return fmt.Errorf("sim: unknown order %s", orderID)
	}
	delete(s.orders, orderID)
	return nil
}

func (s *Exchange) GetActiveOrders(ctx context.Context, contractID string) ([]*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*core.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Exchange) SubscribeOrderUpdates(callback core.OrderUpdateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = callback
}
