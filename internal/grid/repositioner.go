package grid

import (
	"context"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// MoveDirection is the outcome of a breakthrough check.
type MoveDirection int

const (
	MoveNone MoveDirection = 0
	MoveUp   MoveDirection = 1
	MoveDown MoveDirection = -1
)

func (d MoveDirection) String() string {
	switch d {
	case MoveUp:
		return "UP"
	case MoveDown:
		return "DOWN"
	default:
		return "NONE"
	}
}

// Repositioner detects price breakthroughs past the grid band and shifts the
// grid. Like the order manager, it runs under the engine's state mutex.
type Repositioner struct {
	state      *State
	calc       *Calculator
	orders     *OrderManager
	mode       string
	multiplier decimal.Decimal // fraction of one grid step, default 0.5
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder
}

// NewRepositioner builds the repositioner.
func NewRepositioner(
	state *State,
	calc *Calculator,
	orders *OrderManager,
	mode string,
	multiplier decimal.Decimal,
	logger core.ILogger,
) *Repositioner {
	return &Repositioner{
		state:      state,
		calc:       calc,
		orders:     orders,
		mode:       mode,
		multiplier: multiplier,
		logger:     logger.WithField("component", "repositioner"),
		metrics:    telemetry.GetGlobalMetrics(),
	}
}

// Boundaries returns the grid band and the breakthrough threshold for the
// current center. upper = center*(1+spacing*upperCount), lower =
// center*(1-spacing*lowerCount), threshold = center*spacing*multiplier.
func (r *Repositioner) Boundaries() (upper, lower, threshold decimal.Decimal) {
	one := decimal.NewFromInt(1)
	center := r.state.CenterPrice
	upper = center.Mul(one.Add(r.calc.Spacing().Mul(decimal.NewFromInt(int64(r.calc.UpperCount())))))
	lower = center.Mul(one.Sub(r.calc.Spacing().Mul(decimal.NewFromInt(int64(r.calc.LowerCount())))))
	threshold = center.Mul(r.calc.Spacing()).Mul(r.multiplier)
	return upper, lower, threshold
}

// CheckBreakthrough classifies the price against the band. A breach must
// exceed the boundary by more than the threshold to count.
func (r *Repositioner) CheckBreakthrough(price decimal.Decimal) MoveDirection {
	upper, lower, threshold := r.Boundaries()
	if price.GreaterThan(upper.Add(threshold)) {
		return MoveUp
	}
	if price.LessThan(lower.Sub(threshold)) {
		return MoveDown
	}
	return MoveNone
}

// Reposition shifts the grid one spacing step in the breach direction using
// the configured mode. Cancel and place calls are independent: a failure in
// one never aborts the rest of the shift.
func (r *Repositioner) Reposition(ctx context.Context, direction MoveDirection) error {
	if direction == MoveNone {
		return nil
	}

	newCenter, err := r.calc.PriceAtStep(r.state.CenterPrice, int(direction))
	if err != nil {
		r.logger.Error("Reposition aborted, new center not priceable", "direction", direction.String(), "error", err)
		return err
	}

	r.logger.Warn("Grid repositioning",
		"direction", direction.String(), "mode", r.mode,
		"old_center", r.state.CenterPrice.String(), "new_center", newCenter.String())

	switch r.mode {
	case config.RepositionShift:
		err = r.shift(ctx, direction, newCenter)
	default:
		err = r.rebuild(ctx, newCenter)
	}
	if err != nil {
		return err
	}

	r.state.MovesCount++
	r.metrics.AddMove(ctx)
	r.metrics.SetCenterPrice(r.orders.contractID, r.state.CenterPrice.InexactFloat64())
	return nil
}

// rebuild cancels every resting order, recomputes the whole ladder from the
// new center and re-places it. Simple, but the book is briefly empty.
func (r *Repositioner) rebuild(ctx context.Context, newCenter decimal.Decimal) error {
	cancelled, cancelFailed := r.orders.CancelAll(ctx)

	levels, err := r.calc.Levels(newCenter)
	if err != nil {
		r.logger.Error("Rebuild aborted, ladder not computable", "error", err)
		return err
	}

	r.state.Reset(newCenter, levels)
	placed, placeFailed := r.orders.PlaceAll(ctx, levels)

	r.logger.Info("Grid rebuilt",
		"cancelled", cancelled, "cancel_failed", cancelFailed,
		"placed", placed, "place_failed", placeFailed)
	if placed == 0 {
		r.logger.Warn("Rebuild placed no orders, grid degraded until reconciliation")
	}
	return nil
}

// shift trims the single furthest trailing order and adds one new leading
// order one step beyond the current furthest, keeping the ladder size
// constant. New levels take the next unused index on their edge.
func (r *Repositioner) shift(ctx context.Context, direction MoveDirection, newCenter decimal.Decimal) error {
	trailingSide := core.SideBuy
	leadingSide := core.SideSell
	if direction == MoveDown {
		trailingSide = core.SideSell
		leadingSide = core.SideBuy
	}

	cancelled := 0
	if trailing := r.state.FurthestLevel(trailingSide); trailing != nil {
		if err := r.orders.CancelLevel(ctx, trailing); err == nil {
			r.state.RemoveLevel(trailing)
			cancelled++
		}
	} else {
		r.logger.Warn("No trailing order to trim", "side", trailingSide)
	}

	added := 0
	newLevel, err := r.leadingLevel(direction, leadingSide, newCenter)
	if err != nil {
		r.logger.Error("Leading level not priceable, shift degraded", "error", err)
	} else {
		r.state.AddLevel(newLevel)
		if err := r.orders.PlaceLevel(ctx, newLevel); err == nil && newLevel.OrderID != "" {
			added++
		}
	}

	r.state.CenterPrice = newCenter

	r.logger.Info("Grid edge-shifted",
		"direction", direction.String(), "cancelled", cancelled, "added", added,
		"new_center", newCenter.String())
	if added == 0 {
		r.logger.Warn("Edge-shift added no orders, grid degraded until reconciliation")
	}
	return nil
}

// leadingLevel computes the new outermost rung: one spacing step beyond the
// current furthest order on the leading side, or one step past the band edge
// when that side is empty.
func (r *Repositioner) leadingLevel(direction MoveDirection, side core.Side, newCenter decimal.Decimal) (*Level, error) {
	one := decimal.NewFromInt(1)

	var index int
	var rawPrice decimal.Decimal
	furthest := r.state.FurthestLevel(side)

	if direction == MoveUp {
		index = r.state.MaxLevelIndex() + 1
		if furthest != nil {
			rawPrice = furthest.Price.Mul(one.Add(r.calc.Spacing()))
		} else {
			return r.levelAtStep(newCenter, r.calc.UpperCount(), side, index)
		}
	} else {
		index = r.state.MinLevelIndex() - 1
		if furthest != nil {
			rawPrice = furthest.Price.Mul(one.Sub(r.calc.Spacing()))
		} else {
			return r.levelAtStep(newCenter, -r.calc.LowerCount(), side, index)
		}
	}

	return r.calc.buildLevel(rawPrice, side, index)
}

func (r *Repositioner) levelAtStep(center decimal.Decimal, steps int, side core.Side, index int) (*Level, error) {
	price, err := r.calc.PriceAtStep(center, steps)
	if err != nil {
		return nil, err
	}
	return &Level{
		Price:      price,
		Side:       side,
		Quantity:   r.calc.QuantityAt(price),
		LevelIndex: index,
	}, nil
}
