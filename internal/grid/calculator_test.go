package grid

import (
	"errors"
	"testing"

	"grid_trader/internal/core"
	apperrors "grid_trader/pkg/errors"
	"grid_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTick2(p decimal.Decimal) decimal.Decimal { return p.Round(2) }

func newTestCalculator(spacingPercent string, lower, upper int) *Calculator {
	spacing := decimal.RequireFromString(spacingPercent).Div(decimal.NewFromInt(100))
	return NewCalculator(
		spacing, lower, upper,
		decimal.NewFromInt(50),
		NewPrecisionPolicy("sim", "ETH"),
		roundTick2,
		logging.NewNop(),
	)
}

func TestCalculatorLevelLayout(t *testing.T) {
	calc := newTestCalculator("1.0", 10, 10)
	center := decimal.NewFromInt(2000)

	levels, err := calc.Levels(center)
	require.NoError(t, err)
	require.Len(t, levels, 20)

	seen := make(map[int]bool)
	for _, level := range levels {
		seen[level.LevelIndex] = true
		switch level.Side {
		case core.SideBuy:
			assert.True(t, level.Price.LessThan(center), "buy level %d at %s not below center", level.LevelIndex, level.Price)
			assert.Negative(t, level.LevelIndex)
		case core.SideSell:
			assert.True(t, level.Price.GreaterThan(center), "sell level %d at %s not above center", level.LevelIndex, level.Price)
			assert.Positive(t, level.LevelIndex)
		}
		assert.True(t, level.Quantity.IsPositive())
	}

	// Indices must be contiguous: [-10..-1] and [1..10].
	for i := 1; i <= 10; i++ {
		assert.True(t, seen[i], "missing index %d", i)
		assert.True(t, seen[-i], "missing index %d", -i)
	}
	assert.False(t, seen[0])
}

func TestCalculatorLevelPrices(t *testing.T) {
	calc := newTestCalculator("1.0", 2, 2)
	levels, err := calc.Levels(decimal.NewFromInt(2000))
	require.NoError(t, err)

	byIndex := make(map[int]*Level)
	for _, level := range levels {
		byIndex[level.LevelIndex] = level
	}

	assert.True(t, byIndex[-1].Price.Equal(decimal.NewFromInt(1980)))
	assert.True(t, byIndex[-2].Price.Equal(decimal.NewFromInt(1960)))
	assert.True(t, byIndex[1].Price.Equal(decimal.NewFromInt(2020)))
	assert.True(t, byIndex[2].Price.Equal(decimal.NewFromInt(2040)))
}

func TestCalculatorQuantityRoundsDown(t *testing.T) {
	calc := newTestCalculator("1.0", 1, 1)
	// 50 / 1980 = 0.02525..., truncated to 4 decimals
	qty := calc.QuantityAt(decimal.NewFromInt(1980))
	assert.True(t, qty.Equal(decimal.RequireFromString("0.0252")), "got %s", qty)
}

func TestCalculatorSpacingTooWideIsConfigError(t *testing.T) {
	calc := newTestCalculator("15.0", 10, 10) // 150% lower reduction

	_, err := calc.Levels(decimal.NewFromInt(2000))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigError(err))
}

func TestCalculatorValidSpacingPasses(t *testing.T) {
	calc := newTestCalculator("1.0", 10, 10) // 10% lower reduction
	assert.NoError(t, calc.Validate())
}

func TestCalculatorNonPositivePriceAfterRounding(t *testing.T) {
	// A tick rule coarse enough to round small prices to zero.
	roundToWhole := func(p decimal.Decimal) decimal.Decimal { return p.Round(0) }
	spacing := decimal.RequireFromString("0.09") // 9 levels * 9% = 81%, valid
	calc := NewCalculator(spacing, 9, 1, decimal.NewFromInt(50),
		NewPrecisionPolicy("sim", "ETH"), roundToWhole, logging.NewNop())

	// Lowest level: 2 * (1 - 0.81) = 0.38, rounds to 0.
	_, err := calc.Levels(decimal.NewFromInt(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCannotPriceLevel))
}

func TestCalculatorNonPositiveCenter(t *testing.T) {
	calc := newTestCalculator("1.0", 1, 1)
	_, err := calc.Levels(decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCannotPriceLevel))
}

func TestPriceAtStep(t *testing.T) {
	calc := newTestCalculator("1.0", 10, 10)
	center := decimal.NewFromInt(2000)

	up, err := calc.PriceAtStep(center, 11)
	require.NoError(t, err)
	assert.True(t, up.Equal(decimal.NewFromInt(2220)))

	down, err := calc.PriceAtStep(center, -11)
	require.NoError(t, err)
	assert.True(t, down.Equal(decimal.NewFromInt(1780)))
}
