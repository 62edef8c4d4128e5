package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTradesTotal   = "grid_trader_trades_total"
	MetricMovesTotal    = "grid_trader_moves_total"
	MetricProfitTotal   = "grid_trader_profit_total"
	MetricOrdersActive  = "grid_trader_orders_active"
	MetricCenterPrice   = "grid_trader_center_price"
	MetricOrdersPlaced  = "grid_trader_orders_placed_total"
	MetricPlaceFailures = "grid_trader_order_place_failures_total"
)

// MetricsHolder holds the initialized instruments.
type MetricsHolder struct {
	TradesTotal   metric.Int64Counter
	MovesTotal    metric.Int64Counter
	ProfitTotal   metric.Float64Counter
	OrdersPlaced  metric.Int64Counter
	PlaceFailures metric.Int64Counter
	OrdersActive  metric.Int64ObservableGauge
	CenterPrice   metric.Float64ObservableGauge

	// State for observable gauges, keyed by contract id.
	mu              sync.RWMutex
	activeOrdersMap map[string]int64
	centerPriceMap  map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeOrdersMap: make(map[string]int64),
			centerPriceMap:  make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes the instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TradesTotal, err = meter.Int64Counter(MetricTradesTotal, metric.WithDescription("Total grid fills processed"))
	if err != nil {
		return err
	}

	m.MovesTotal, err = meter.Int64Counter(MetricMovesTotal, metric.WithDescription("Total grid repositioning moves"))
	if err != nil {
		return err
	}

	m.ProfitTotal, err = meter.Float64Counter(MetricProfitTotal, metric.WithDescription("Accrued spread profit in quote currency (approximation)"))
	if err != nil {
		return err
	}

	m.OrdersPlaced, err = meter.Int64Counter(MetricOrdersPlaced, metric.WithDescription("Total order placement attempts that succeeded"))
	if err != nil {
		return err
	}

	m.PlaceFailures, err = meter.Int64Counter(MetricPlaceFailures, metric.WithDescription("Total order placement attempts that failed"))
	if err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Currently resting grid orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for contract, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("contract", contract)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CenterPrice, err = meter.Float64ObservableGauge(MetricCenterPrice, metric.WithDescription("Current grid center price"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for contract, val := range m.centerPriceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("contract", contract)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Counter helpers below tolerate an uninitialized holder so call sites work
// before InitMetrics runs (and in tests that never set up a provider).

// AddTrade increments the fills counter.
func (m *MetricsHolder) AddTrade(ctx context.Context) {
	if m.TradesTotal != nil {
		m.TradesTotal.Add(ctx, 1)
	}
}

// AddMove increments the repositioning counter.
func (m *MetricsHolder) AddMove(ctx context.Context) {
	if m.MovesTotal != nil {
		m.MovesTotal.Add(ctx, 1)
	}
}

// AddProfit accrues captured spread profit.
func (m *MetricsHolder) AddProfit(ctx context.Context, amount float64) {
	if m.ProfitTotal != nil {
		m.ProfitTotal.Add(ctx, amount)
	}
}

// AddOrderPlaced increments the successful placement counter.
func (m *MetricsHolder) AddOrderPlaced(ctx context.Context) {
	if m.OrdersPlaced != nil {
		m.OrdersPlaced.Add(ctx, 1)
	}
}

// AddPlaceFailure increments the failed placement counter.
func (m *MetricsHolder) AddPlaceFailure(ctx context.Context) {
	if m.PlaceFailures != nil {
		m.PlaceFailures.Add(ctx, 1)
	}
}

// SetActiveOrders records the resting order count for a contract.
func (m *MetricsHolder) SetActiveOrders(contract string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[contract] = count
}

// SetCenterPrice records the current center price for a contract.
func (m *MetricsHolder) SetCenterPrice(contract string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.centerPriceMap[contract] = price
}
