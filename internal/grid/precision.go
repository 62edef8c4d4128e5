// Package grid implements the grid trading strategy: level calculation,
// fill-driven order lifecycle, breakthrough repositioning and the control loop.
package grid

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PrecisionPolicy maps (exchange, ticker) to the quantity rounding rule for
// order sizes. Quantities always round down and never drop below the venue
// minimum, so a level can never commit more than its budgeted notional.
type PrecisionPolicy struct {
	decimals    int32
	minQuantity decimal.Decimal
}

// NewPrecisionPolicy selects the rule for the venue and ticker.
func NewPrecisionPolicy(exchange, ticker string) PrecisionPolicy {
	switch strings.ToLower(exchange) {
	case "grvt":
		switch strings.ToUpper(ticker) {
		case "HYPE", "DOGE", "ADA", "XRP":
			// Low-priced tokens trade in whole units.
			return PrecisionPolicy{decimals: 0, minQuantity: decimal.NewFromInt(1)}
		case "SOL", "AVAX", "NEAR":
			return PrecisionPolicy{decimals: 1, minQuantity: decimal.RequireFromString("0.1")}
		default:
			return PrecisionPolicy{decimals: 2, minQuantity: decimal.RequireFromString("0.01")}
		}
	case "edgex", "backpack":
		return PrecisionPolicy{decimals: 4, minQuantity: decimal.Zero}
	default:
		return PrecisionPolicy{decimals: 4, minQuantity: decimal.Zero}
	}
}

// RoundQuantity truncates qty to the policy's precision, clamped to the
// venue minimum when one applies.
func (p PrecisionPolicy) RoundQuantity(qty decimal.Decimal) decimal.Decimal {
	rounded := qty.Truncate(p.decimals)
	if p.minQuantity.IsPositive() && rounded.LessThan(p.minQuantity) {
		return p.minQuantity
	}
	return rounded
}

// Decimals exposes the quantity precision for reporting.
func (p PrecisionPolicy) Decimals() int32 { return p.decimals }

// MinQuantity exposes the venue minimum for reporting.
func (p PrecisionPolicy) MinQuantity() decimal.Decimal { return p.minQuantity }
