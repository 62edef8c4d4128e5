package grid

import (
	"grid_trader/internal/core"

	"github.com/shopspring/decimal"
)

// State is the shared grid state. It is NOT self-locking: the engine owns the
// single mutex that guards it, so the fill handler and the control loop can
// never interleave destructively.
type State struct {
	CenterPrice  decimal.Decimal
	Levels       []*Level
	ActiveOrders map[string]*Level // orderId -> level, O(1) fill lookup

	TradesCount int64
	MovesCount  int64
	TotalProfit decimal.Decimal
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		ActiveOrders: make(map[string]*Level),
		TotalProfit:  decimal.Zero,
	}
}

// Reset replaces the ladder wholesale. Counters survive; they reset only at
// process start.
func (s *State) Reset(center decimal.Decimal, levels []*Level) {
	s.CenterPrice = center
	s.Levels = levels
	s.ActiveOrders = make(map[string]*Level)
}

// BindOrder marks a level as resting under the given order id.
func (s *State) BindOrder(level *Level, orderID string) {
	level.OrderID = orderID
	s.ActiveOrders[orderID] = level
}

// ReleaseOrder removes the resting order from a level, returning the level or
// nil if the id is unknown.
func (s *State) ReleaseOrder(orderID string) *Level {
	level, ok := s.ActiveOrders[orderID]
	if !ok {
		return nil
	}
	delete(s.ActiveOrders, orderID)
	level.OrderID = ""
	return level
}

// AddLevel appends a rung to the ladder.
func (s *State) AddLevel(level *Level) {
	s.Levels = append(s.Levels, level)
}

// RemoveLevel drops a rung from the ladder and its active-order entry.
func (s *State) RemoveLevel(target *Level) {
	for i, level := range s.Levels {
		if level == target {
			s.Levels = append(s.Levels[:i], s.Levels[i+1:]...)
			break
		}
	}
	if target.OrderID != "" {
		delete(s.ActiveOrders, target.OrderID)
		target.OrderID = ""
	}
}

// FurthestLevel returns the resting level furthest from center on the given
// side, or nil when that side has no resting orders.
func (s *State) FurthestLevel(side core.Side) *Level {
	var furthest *Level
	for _, level := range s.Levels {
		if level.Side != side || level.OrderID == "" {
			continue
		}
		if furthest == nil {
			furthest = level
			continue
		}
		switch side {
		case core.SideBuy:
			if level.Price.LessThan(furthest.Price) {
				furthest = level
			}
		case core.SideSell:
			if level.Price.GreaterThan(furthest.Price) {
				furthest = level
			}
		}
	}
	return furthest
}

// MaxLevelIndex returns the highest level index in use on the sell side, or 0.
func (s *State) MaxLevelIndex() int {
	max := 0
	for _, level := range s.Levels {
		if level.LevelIndex > max {
			max = level.LevelIndex
		}
	}
	return max
}

// MinLevelIndex returns the lowest (most negative) index in use, or 0.
func (s *State) MinLevelIndex() int {
	min := 0
	for _, level := range s.Levels {
		if level.LevelIndex < min {
			min = level.LevelIndex
		}
	}
	return min
}

// Snapshot renders the state for persistence.
func (s *State) Snapshot(contractID string) *core.Snapshot {
	snap := &core.Snapshot{
		ContractID:  contractID,
		CenterPrice: s.CenterPrice,
		TradesCount: s.TradesCount,
		MovesCount:  s.MovesCount,
		TotalProfit: s.TotalProfit,
	}
	for _, level := range s.Levels {
		snap.Levels = append(snap.Levels, core.SnapshotLevel{
			Price:      level.Price,
			Side:       level.Side,
			Quantity:   level.Quantity,
			OrderID:    level.OrderID,
			LevelIndex: level.LevelIndex,
		})
	}
	return snap
}
