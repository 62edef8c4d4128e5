package grid

import (
	"context"
	"testing"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepositioner(f *gridFixture, mode string) *Repositioner {
	return NewRepositioner(f.state, f.calc, f.orders, mode,
		decimal.RequireFromString("0.5"), logging.NewNop())
}

func TestBoundaries(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	repo := newRepositioner(f, config.RepositionRebuild)

	upper, lower, threshold := repo.Boundaries()
	assert.True(t, upper.Equal(decimal.NewFromInt(2200)), "upper %s", upper)
	assert.True(t, lower.Equal(decimal.NewFromInt(1800)), "lower %s", lower)
	assert.True(t, threshold.Equal(decimal.NewFromInt(10)), "threshold %s", threshold)
}

func TestCheckBreakthrough(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	repo := newRepositioner(f, config.RepositionRebuild)

	tests := []struct {
		name  string
		price string
		want  MoveDirection
	}{
		{"inside band", "2100", MoveNone},
		{"above boundary within threshold", "2205", MoveNone},
		{"exactly at boundary plus threshold", "2210", MoveNone},
		{"above boundary past threshold", "2210.01", MoveUp},
		{"well above", "2300", MoveUp},
		{"below boundary within threshold", "1795", MoveNone},
		{"exactly at lower minus threshold", "1790", MoveNone},
		{"below boundary past threshold", "1789.99", MoveDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repo.CheckBreakthrough(decimal.RequireFromString(tt.price))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepositionNoneIsNoOp(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	repo := newRepositioner(f, config.RepositionRebuild)

	require.NoError(t, repo.Reposition(context.Background(), MoveNone))
	assert.Equal(t, int64(0), f.state.MovesCount)
}

func TestRebuildShiftsCenterAndReplacesLadder(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	repo := newRepositioner(f, config.RepositionRebuild)

	require.NoError(t, repo.Reposition(context.Background(), MoveUp))

	assert.True(t, f.state.CenterPrice.Equal(decimal.NewFromInt(2020)), "center %s", f.state.CenterPrice)
	assert.Len(t, f.state.Levels, 20)
	assert.Len(t, f.state.ActiveOrders, 20)
	assert.Equal(t, int64(1), f.state.MovesCount)
	assert.Equal(t, 20, f.exchange.OrderCount())
}

func TestRebuildDown(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	repo := newRepositioner(f, config.RepositionRebuild)

	require.NoError(t, repo.Reposition(context.Background(), MoveDown))
	assert.True(t, f.state.CenterPrice.Equal(decimal.NewFromInt(1980)), "center %s", f.state.CenterPrice)
	assert.Equal(t, int64(1), f.state.MovesCount)
}

func TestEdgeShiftUpKeepsLadderSize(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	repo := newRepositioner(f, config.RepositionShift)

	before := len(f.state.ActiveOrders)
	require.NoError(t, repo.Reposition(context.Background(), MoveUp))

	// One cancelled, one added: the total is unchanged.
	assert.Len(t, f.state.ActiveOrders, before)
	assert.Len(t, f.state.Levels, 20)
	assert.Equal(t, int64(1), f.state.MovesCount)
	assert.True(t, f.state.CenterPrice.Equal(decimal.NewFromInt(2020)))

	// The old lowest buy (1800) is gone.
	for _, level := range f.state.Levels {
		if level.Side == core.SideBuy {
			assert.False(t, level.Price.Equal(decimal.NewFromInt(1800)), "lowest buy should be trimmed")
		}
	}

	// A new highest sell appears one step beyond the old edge (2200*1.01)
	// with the next unused index.
	newSell := f.state.FurthestLevel(core.SideSell)
	require.NotNil(t, newSell)
	assert.True(t, newSell.Price.Equal(decimal.NewFromInt(2222)), "new sell %s", newSell.Price)
	assert.Equal(t, 11, newSell.LevelIndex)
}

func TestEdgeShiftDown(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	repo := newRepositioner(f, config.RepositionShift)

	require.NoError(t, repo.Reposition(context.Background(), MoveDown))

	assert.Len(t, f.state.ActiveOrders, 20)
	assert.True(t, f.state.CenterPrice.Equal(decimal.NewFromInt(1980)))

	newBuy := f.state.FurthestLevel(core.SideBuy)
	require.NotNil(t, newBuy)
	// Old lowest buy 1800, new one is 1800*0.99.
	assert.True(t, newBuy.Price.Equal(decimal.NewFromInt(1782)), "new buy %s", newBuy.Price)
	assert.Equal(t, -11, newBuy.LevelIndex)
}

func TestEdgeShiftWithEmptyTrailingSide(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	repo := newRepositioner(f, config.RepositionShift)

	// Only place the sell side; the buy side has nothing to trim.
	for _, level := range f.state.Levels {
		if level.Side == core.SideSell {
			require.NoError(t, f.orders.PlaceLevel(context.Background(), level))
		}
	}

	require.NoError(t, repo.Reposition(context.Background(), MoveUp))
	assert.Equal(t, int64(1), f.state.MovesCount)
	assert.Len(t, f.state.ActiveOrders, 11)
}

func TestEdgeShiftCancelFailureDoesNotAbortShift(t *testing.T) {
	f := newGridFixture(t, config.FillPolicyRefill)
	f.initLevels(t, 2000)
	f.orders.PlaceAll(context.Background(), f.state.Levels)
	f.exchange.FailCancels(true)
	repo := newRepositioner(f, config.RepositionShift)

	require.NoError(t, repo.Reposition(context.Background(), MoveUp))
	// Trim failed but the new leading order was still placed.
	assert.Len(t, f.state.ActiveOrders, 21)
	assert.Equal(t, int64(1), f.state.MovesCount)
}
