package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantityDown truncates a quantity to the specified decimals. Order
// sizes must never round up past the available budget.
func RoundQuantityDown(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Truncate(int32(qtyDecimals))
}

// MidPrice returns the midpoint of the best bid and ask.
func MidPrice(bid, ask decimal.Decimal) decimal.Decimal {
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}

// LinearLadder generates count prices above (direction=+1) or below
// (direction=-1) the center at multiples of the spacing fraction:
// center*(1 +/- spacing*i) for i in 1..count.
func LinearLadder(center, spacing decimal.Decimal, count int, direction int) []decimal.Decimal {
	one := decimal.NewFromInt(1)
	prices := make([]decimal.Decimal, 0, count)
	for i := 1; i <= count; i++ {
		step := spacing.Mul(decimal.NewFromInt(int64(i)))
		var factor decimal.Decimal
		if direction >= 0 {
			factor = one.Add(step)
		} else {
			factor = one.Sub(step)
		}
		prices = append(prices, center.Mul(factor))
	}
	return prices
}

// SpreadProfit approximates the profit captured by one grid fill: the
// spacing fraction applied to the per-order notional.
func SpreadProfit(spacing, perOrderAmount decimal.Decimal) decimal.Decimal {
	return spacing.Mul(perOrderAmount)
}
