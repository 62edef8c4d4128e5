package grid

import (
	"context"
	"fmt"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	apperrors "grid_trader/pkg/errors"
	"grid_trader/pkg/telemetry"
	"grid_trader/pkg/tradingutils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// OrderManager places, tracks and replenishes one order per grid level. It is
// not safe for concurrent use on its own: every method assumes the caller
// holds the engine's state mutex.
type OrderManager struct {
	exchange   core.IExchange
	state      *State
	calc       *Calculator
	pacer      *rate.Limiter
	contractID string
	fillPolicy string
	paused     bool
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder
}

// NewOrderManager builds the manager. The pacer spaces out successive
// exchange calls in a batch to stay inside venue rate limits.
func NewOrderManager(
	exchange core.IExchange,
	state *State,
	calc *Calculator,
	pacer *rate.Limiter,
	contractID string,
	fillPolicy string,
	logger core.ILogger,
) *OrderManager {
	return &OrderManager{
		exchange:   exchange,
		state:      state,
		calc:       calc,
		pacer:      pacer,
		contractID: contractID,
		fillPolicy: fillPolicy,
		logger:     logger.WithField("component", "order_manager"),
		metrics:    telemetry.GetGlobalMetrics(),
	}
}

// SetPaused suspends or resumes new order placement. Resting orders are
// untouched either way.
func (m *OrderManager) SetPaused(paused bool) {
	if m.paused != paused {
		m.logger.Warn("Order placement pause state changed", "paused", paused)
	}
	m.paused = paused
}

// Paused reports whether placement is suspended.
func (m *OrderManager) Paused() bool { return m.paused }

// PlaceLevel places a limit order for the level and binds the resulting order
// id. Placement is attempted once; on failure the level stays unresting and
// the periodic reconciliation pass picks it up.
func (m *OrderManager) PlaceLevel(ctx context.Context, level *Level) error {
	if m.paused {
		m.logger.Debug("Placement suspended, skipping level", "level_index", level.LevelIndex)
		return nil
	}
	if !level.Quantity.IsPositive() {
		return fmt.Errorf("%w: level %d quantity %s", apperrors.ErrCannotPriceLevel, level.LevelIndex, level.Quantity)
	}

	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}

	req := &core.OrderRequest{
		ContractID:    m.contractID,
		Side:          level.Side,
		Quantity:      level.Quantity,
		Price:         level.Price,
		ClientOrderID: uuid.NewString(),
	}

	result, err := m.exchange.PlaceOrder(ctx, req)
	if err != nil {
		m.metrics.AddPlaceFailure(ctx)
		m.logger.Error("Order placement failed",
			"level_index", level.LevelIndex, "side", level.Side, "price", level.Price.String(), "error", err)
		return fmt.Errorf("%w: place level %d: %v", apperrors.ErrExchangeCall, level.LevelIndex, err)
	}
	if !result.Success {
		m.metrics.AddPlaceFailure(ctx)
		m.logger.Error("Order placement rejected",
			"level_index", level.LevelIndex, "side", level.Side, "price", level.Price.String(), "reason", result.ErrorMessage)
		return fmt.Errorf("%w: place level %d: %s", apperrors.ErrExchangeCall, level.LevelIndex, result.ErrorMessage)
	}

	m.state.BindOrder(level, result.OrderID)
	m.metrics.AddOrderPlaced(ctx)
	m.logger.Info("Order placed",
		"order_id", result.OrderID, "side", level.Side, "price", level.Price.String(),
		"quantity", level.Quantity.String(), "level_index", level.LevelIndex)
	return nil
}

// PlaceAll places every level in the ladder, pacing between calls. Failures
// do not abort the batch; the placed/failed counts are returned.
func (m *OrderManager) PlaceAll(ctx context.Context, levels []*Level) (placed, failed int) {
	for _, level := range levels {
		if ctx.Err() != nil {
			return placed, failed
		}
		if err := m.PlaceLevel(ctx, level); err != nil {
			failed++
			continue
		}
		if level.OrderID != "" {
			placed++
		}
	}
	if failed > 0 {
		m.logger.Warn("Grid placement batch finished with failures", "placed", placed, "failed", failed)
	}
	return placed, failed
}

// CancelLevel cancels the level's resting order, if any. Attempted once.
func (m *OrderManager) CancelLevel(ctx context.Context, level *Level) error {
	if level.OrderID == "" {
		return nil
	}
	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}

	orderID := level.OrderID
	if err := m.exchange.CancelOrder(ctx, orderID); err != nil {
		m.logger.Error("Order cancellation failed", "order_id", orderID, "error", err)
		return fmt.Errorf("%w: cancel %s: %v", apperrors.ErrExchangeCall, orderID, err)
	}

	m.state.ReleaseOrder(orderID)
	m.logger.Info("Order cancelled", "order_id", orderID, "level_index", level.LevelIndex)
	return nil
}

// CancelAll cancels every resting order. Failures are logged and skipped.
func (m *OrderManager) CancelAll(ctx context.Context) (cancelled, failed int) {
	for _, level := range m.state.Levels {
		if level.OrderID == "" {
			continue
		}
		if err := m.CancelLevel(ctx, level); err != nil {
			failed++
			continue
		}
		cancelled++
	}
	return cancelled, failed
}

// OnFill processes a fill notification. Unknown order ids are ignored, which
// guards against duplicate and late events. Exactly one fill policy applies:
//
//   - refill: the same level re-arms at its original price with a freshly
//     computed quantity, keeping the ladder static.
//   - flip: the level flips to the opposite side at the fill price, which is
//     where the spread profit is captured on the next round trip.
//
// Profit accrual credits spacing*perOrderAmount per fill on either side. This
// is an approximation of the captured spread, not a realized P&L ledger.
func (m *OrderManager) OnFill(ctx context.Context, orderID string, fillPrice, fillSize decimal.Decimal) {
	level := m.state.ReleaseOrder(orderID)
	if level == nil {
		m.logger.Debug("Fill for unknown order ignored", "order_id", orderID)
		return
	}

	m.state.TradesCount++
	profit := tradingutils.SpreadProfit(m.calc.Spacing(), m.calc.PerOrderAmount())
	m.state.TotalProfit = m.state.TotalProfit.Add(profit)

	m.metrics.AddTrade(ctx)
	m.metrics.AddProfit(ctx, profit.InexactFloat64())

	m.logger.Info("Grid fill",
		"order_id", orderID, "side", level.Side, "fill_price", fillPrice.String(),
		"fill_size", fillSize.String(), "level_index", level.LevelIndex,
		"trades_count", m.state.TradesCount, "total_profit", m.state.TotalProfit.String())

	switch m.fillPolicy {
	case config.FillPolicyFlip:
		m.flipLevel(ctx, level, fillPrice, fillSize)
	default:
		m.refillLevel(ctx, level)
	}
}

// refillLevel re-places the same level at its original price. The quantity is
// recomputed there, not at the fill price.
func (m *OrderManager) refillLevel(ctx context.Context, level *Level) {
	level.Quantity = m.calc.QuantityAt(level.Price)
	if err := m.PlaceLevel(ctx, level); err != nil {
		m.logger.Warn("Refill placement failed, level left unresting", "level_index", level.LevelIndex)
	}
}

// flipLevel turns the level into its opposite side at the fill price. A buy
// fill carries its filled size to the sell; a sell fill buys back a freshly
// computed quantity.
func (m *OrderManager) flipLevel(ctx context.Context, level *Level, fillPrice, fillSize decimal.Decimal) {
	if !fillPrice.IsPositive() {
		m.logger.Error("Flip skipped, non-positive fill price", "level_index", level.LevelIndex, "fill_price", fillPrice.String())
		return
	}

	prevSide := level.Side
	level.Side = prevSide.Opposite()
	level.Price = fillPrice
	if prevSide == core.SideBuy {
		level.Quantity = fillSize
	} else {
		level.Quantity = m.calc.QuantityAt(fillPrice)
	}

	if err := m.PlaceLevel(ctx, level); err != nil {
		m.logger.Warn("Flip placement failed, level left unresting", "level_index", level.LevelIndex)
	}
}
