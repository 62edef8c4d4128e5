package tradingutils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundPrice(t *testing.T) {
	price := decimal.RequireFromString("2000.12345")
	assert.True(t, RoundPrice(price, 2).Equal(decimal.RequireFromString("2000.12")))
	assert.True(t, RoundPrice(price, 0).Equal(decimal.RequireFromString("2000")))
}

func TestRoundQuantityDown(t *testing.T) {
	qty := decimal.RequireFromString("0.12999")
	assert.True(t, RoundQuantityDown(qty, 2).Equal(decimal.RequireFromString("0.12")))
	assert.True(t, RoundQuantityDown(qty, 0).Equal(decimal.Zero))
}

func TestMidPrice(t *testing.T) {
	bid := decimal.RequireFromString("1999")
	ask := decimal.RequireFromString("2001")
	assert.True(t, MidPrice(bid, ask).Equal(decimal.RequireFromString("2000")))
}

func TestLinearLadder(t *testing.T) {
	center := decimal.RequireFromString("2000")
	spacing := decimal.RequireFromString("0.01")

	up := LinearLadder(center, spacing, 3, 1)
	assert.Len(t, up, 3)
	assert.True(t, up[0].Equal(decimal.RequireFromString("2020")))
	assert.True(t, up[1].Equal(decimal.RequireFromString("2040")))
	assert.True(t, up[2].Equal(decimal.RequireFromString("2060")))

	down := LinearLadder(center, spacing, 2, -1)
	assert.Len(t, down, 2)
	assert.True(t, down[0].Equal(decimal.RequireFromString("1980")))
	assert.True(t, down[1].Equal(decimal.RequireFromString("1960")))
}

func TestSpreadProfit(t *testing.T) {
	got := SpreadProfit(decimal.RequireFromString("0.01"), decimal.RequireFromString("50"))
	assert.True(t, got.Equal(decimal.RequireFromString("0.5")))
}
