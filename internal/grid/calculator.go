package grid

import (
	"fmt"

	"grid_trader/internal/core"
	apperrors "grid_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// Level is one ladder rung. A level is either resting (OrderID set) or
// pending replace (OrderID empty, between a fill/cancel and the re-place).
type Level struct {
	Price      decimal.Decimal
	Side       core.Side
	Quantity   decimal.Decimal
	OrderID    string
	LevelIndex int // negative below center, positive above, magnitude = steps
}

// Calculator derives the level ladder from a center price. It is pure apart
// from the venue tick rounding it delegates to the exchange.
type Calculator struct {
	spacing        decimal.Decimal // fraction, 1% = 0.01
	lowerCount     int
	upperCount     int
	perOrderAmount decimal.Decimal
	precision      PrecisionPolicy
	roundTick      func(decimal.Decimal) decimal.Decimal
	logger         core.ILogger
}

// NewCalculator builds a calculator. roundTick is the exchange's price
// snapping rule.
func NewCalculator(
	spacing decimal.Decimal,
	lowerCount, upperCount int,
	perOrderAmount decimal.Decimal,
	precision PrecisionPolicy,
	roundTick func(decimal.Decimal) decimal.Decimal,
	logger core.ILogger,
) *Calculator {
	return &Calculator{
		spacing:        spacing,
		lowerCount:     lowerCount,
		upperCount:     upperCount,
		perOrderAmount: perOrderAmount,
		precision:      precision,
		roundTick:      roundTick,
		logger:         logger.WithField("component", "calculator"),
	}
}

// Validate fails fast when the parameters cannot produce a positive ladder.
// The lowest buy sits at center*(1 - spacing*lowerCount); a total reduction
// at or beyond 100% is a configuration error, at or beyond 80% a warning.
func (c *Calculator) Validate() error {
	one := decimal.NewFromInt(1)
	lowerReduction := c.spacing.Mul(decimal.NewFromInt(int64(c.lowerCount)))

	if lowerReduction.GreaterThanOrEqual(one) {
		return apperrors.NewConfigError("grid.spacing_percent",
			"spacing over %d lower levels reduces price by %s%%, lowest levels would be non-positive",
			c.lowerCount, lowerReduction.Mul(decimal.NewFromInt(100)).StringFixed(0))
	}

	if lowerReduction.GreaterThanOrEqual(decimal.RequireFromString("0.8")) {
		c.logger.Warn("Lower grid levels compressed near zero",
			"lower_reduction_percent", lowerReduction.Mul(decimal.NewFromInt(100)).StringFixed(0))
	}

	return nil
}

// Levels produces the full ladder around center: lowerCount buy levels below
// and upperCount sell levels above, indices contiguous in
// [-lowerCount..-1] and [1..upperCount].
func (c *Calculator) Levels(center decimal.Decimal) ([]*Level, error) {
	if !center.IsPositive() {
		return nil, fmt.Errorf("%w: center price %s", apperrors.ErrCannotPriceLevel, center)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	levels := make([]*Level, 0, c.lowerCount+c.upperCount)

	for i := 1; i <= c.lowerCount; i++ {
		step := c.spacing.Mul(decimal.NewFromInt(int64(i)))
		level, err := c.buildLevel(center.Mul(one.Sub(step)), core.SideBuy, -i)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	for i := 1; i <= c.upperCount; i++ {
		step := c.spacing.Mul(decimal.NewFromInt(int64(i)))
		level, err := c.buildLevel(center.Mul(one.Add(step)), core.SideSell, i)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// buildLevel tick-rounds the price, derives the quantity from the per-order
// notional and applies the precision policy. A non-positive price after
// rounding means the configuration and venue precision disagree.
func (c *Calculator) buildLevel(rawPrice decimal.Decimal, side core.Side, index int) (*Level, error) {
	price := c.roundTick(rawPrice)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: level %d price %s after tick rounding", apperrors.ErrCannotPriceLevel, index, price)
	}

	quantity := c.QuantityAt(price)
	return &Level{
		Price:      price,
		Side:       side,
		Quantity:   quantity,
		LevelIndex: index,
	}, nil
}

// QuantityAt converts the per-order notional into a base quantity at the
// given price, rounded down per the precision policy. The price must be
// positive; Levels and callers guarantee that.
func (c *Calculator) QuantityAt(price decimal.Decimal) decimal.Decimal {
	return c.precision.RoundQuantity(c.perOrderAmount.Div(price))
}

// PriceAtStep returns center shifted by count spacing steps in the given
// direction, tick-rounded, validated positive.
func (c *Calculator) PriceAtStep(center decimal.Decimal, steps int) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	factor := one.Add(c.spacing.Mul(decimal.NewFromInt(int64(steps))))
	price := c.roundTick(center.Mul(factor))
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %d steps from %s yields %s", apperrors.ErrCannotPriceLevel, steps, center, price)
	}
	return price, nil
}

// Spacing exposes the spacing fraction.
func (c *Calculator) Spacing() decimal.Decimal { return c.spacing }

// LowerCount exposes the configured buy-side depth.
func (c *Calculator) LowerCount() int { return c.lowerCount }

// UpperCount exposes the configured sell-side depth.
func (c *Calculator) UpperCount() int { return c.upperCount }

// PerOrderAmount exposes the per-order quote notional.
func (c *Calculator) PerOrderAmount() decimal.Decimal { return c.perOrderAmount }
