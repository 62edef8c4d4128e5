package grid

import (
	"context"
	"errors"
	"testing"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/internal/mock"
	apperrors "grid_trader/pkg/errors"
	"grid_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type gridFixture struct {
	exchange *mock.Exchange
	state    *State
	calc     *Calculator
	orders   *OrderManager
}

func newGridFixture(t *testing.T, fillPolicy string) *gridFixture {
	t.Helper()
	exchange := mock.NewExchange("mock")
	spacing := decimal.RequireFromString("0.01")
	calc := NewCalculator(spacing, 10, 10, decimal.NewFromInt(50),
		NewPrecisionPolicy("sim", "ETH"), exchange.RoundToTick, logging.NewNop())
	state := NewState()
	orders := NewOrderManager(exchange, state, calc,
		rate.NewLimiter(rate.Inf, 1), "ETH-USDT", fillPolicy, logging.NewNop())
	return &gridFixture{exchange: exchange, state: state, calc: calc, orders: orders}
}

func (f *gridFixture) initLevels(t *testing.T, center int64) {
	t.Helper()
	levels, err := f.calc.Levels(decimal.NewFromInt(center))
	require.NoError(t, err)
	f.state.Reset(decimal.NewFromInt(center), levels)
}

func TestPlaceLevelBindsOrder(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)

	level := f.state.Levels[0]
	require.NoError(t, f.orders.PlaceLevel(context.Background(), level))

	assert.NotEmpty(t, level.OrderID)
	assert.Same(t, level, f.state.ActiveOrders[level.OrderID])
	assert.Equal(t, 1, f.exchange.OrderCount())
}

func TestPlaceLevelFailureLeavesUnresting(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.exchange.FailPlaceOrders(true)

	level := f.state.Levels[0]
	err := f.orders.PlaceLevel(context.Background(), level)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExchangeCall))
	assert.Empty(t, level.OrderID)
	assert.Empty(t, f.state.ActiveOrders)
}

func TestPlaceLevelRejectionLeavesUnresting(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.exchange.RejectPlacements(true)

	err := f.orders.PlaceLevel(context.Background(), f.state.Levels[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExchangeCall))
}

func TestPlaceLevelWhilePausedIsSkipped(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.SetPaused(true)

	require.NoError(t, f.orders.PlaceLevel(context.Background(), f.state.Levels[0]))
	assert.Equal(t, 0, f.exchange.OrderCount())
}

func TestPlaceAllCountsFailures(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)

	placed, failed := f.orders.PlaceAll(context.Background(), f.state.Levels)
	assert.Equal(t, 20, placed)
	assert.Equal(t, 0, failed)
	assert.Len(t, f.state.ActiveOrders, 20)
}

func TestOnFillUnknownOrderIsNoOp(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)

	before := len(f.state.ActiveOrders)
	f.orders.OnFill(context.Background(), "no-such-order", decimal.NewFromInt(1980), decimal.NewFromInt(1))

	assert.Equal(t, int64(0), f.state.TradesCount)
	assert.Len(t, f.state.ActiveOrders, before)
	assert.True(t, f.state.TotalProfit.IsZero())
}

func TestOnFillRefillReArmsSameLevel(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)

	level := f.state.Levels[0]
	oldID := level.OrderID
	oldPrice := level.Price
	oldSide := level.Side

	f.orders.OnFill(context.Background(), oldID, level.Price, level.Quantity)

	assert.Equal(t, int64(1), f.state.TradesCount)
	// spacing * perOrderAmount = 0.01 * 50
	assert.True(t, f.state.TotalProfit.Equal(decimal.RequireFromString("0.5")), "got %s", f.state.TotalProfit)

	assert.NotEmpty(t, level.OrderID)
	assert.NotEqual(t, oldID, level.OrderID)
	assert.True(t, level.Price.Equal(oldPrice))
	assert.Equal(t, oldSide, level.Side)
	assert.Len(t, f.state.ActiveOrders, 20)
}

func TestOnFillFlipBuyBecomesSellAtFillPrice(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyFlip)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)

	var buyLevel *Level
	for _, l := range f.state.Levels {
		if l.Side == core.SideBuy {
			buyLevel = l
			break
		}
	}
	require.NotNil(t, buyLevel)

	fillPrice := buyLevel.Price
	fillSize := buyLevel.Quantity
	f.orders.OnFill(context.Background(), buyLevel.OrderID, fillPrice, fillSize)

	assert.Equal(t, core.SideSell, buyLevel.Side)
	assert.True(t, buyLevel.Price.Equal(fillPrice))
	assert.True(t, buyLevel.Quantity.Equal(fillSize))
	assert.NotEmpty(t, buyLevel.OrderID)
	assert.Len(t, f.state.ActiveOrders, 20)
}

func TestOnFillFlipSellBecomesBuyWithFreshQuantity(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyFlip)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)

	var sellLevel *Level
	for _, l := range f.state.Levels {
		if l.Side == core.SideSell {
			sellLevel = l
			break
		}
	}
	require.NotNil(t, sellLevel)

	fillPrice := sellLevel.Price
	f.orders.OnFill(context.Background(), sellLevel.OrderID, fillPrice, sellLevel.Quantity)

	assert.Equal(t, core.SideBuy, sellLevel.Side)
	assert.True(t, sellLevel.Price.Equal(fillPrice))
	assert.True(t, sellLevel.Quantity.Equal(f.calc.QuantityAt(fillPrice)))
}

func TestCancelAll(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)

	cancelled, failed := f.orders.CancelAll(context.Background())
	assert.Equal(t, 20, cancelled)
	assert.Equal(t, 0, failed)
	assert.Empty(t, f.state.ActiveOrders)
	assert.Equal(t, 0, f.exchange.OrderCount())
}

func TestCancelAllToleratesFailures(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	f.exchange.FailCancels(true)

	cancelled, failed := f.orders.CancelAll(context.Background())
	assert.Equal(t, 0, cancelled)
	assert.Equal(t, 20, failed)
	// State untouched; reconciliation sorts it out later.
	assert.Len(t, f.state.ActiveOrders, 20)
}
