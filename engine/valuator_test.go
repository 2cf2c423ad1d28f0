package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zenithtrade/papertrader/store"
)

func TestHoldingUnrealizedPnLScalesWithLeverage(t *testing.T) {
	t.Parallel()

	h := store.Holding{Quantity: 0.1, AvgEntryPrice: 95000, Leverage: 5}

	assert.InDelta(t, 2500.0, HoldingUnrealizedPnL(h, 100000), 1e-9)
	assert.InDelta(t, -2500.0, HoldingUnrealizedPnL(h, 90000), 1e-9)
	assert.InDelta(t, 0.0, HoldingUnrealizedPnL(h, 95000), 1e-9)
}

func TestRevalueComputesDerivedFields(t *testing.T) {
	t.Parallel()

	account := store.Account{
		ID:            "a1",
		WalletBalance: 10000,
		MarginUsed:    1900,
		WinningTrades: 3,
		LosingTrades:  1,
	}
	holdings := []store.Holding{
		{Symbol: "BTC", Quantity: 0.1, AvgEntryPrice: 95000, Leverage: 5, MarginUsed: 1900},
	}
	prices := map[string]float64{"BTC": 100000}

	out := Revalue(account, holdings, prices, 10000)

	assert.InDelta(t, 2500.0, out.UnrealizedPnL, 1e-9)
	// wallet + margin + unrealized.
	assert.InDelta(t, 10000+1900+2500, out.PortfolioValue, 1e-9)
	assert.InDelta(t, out.PortfolioValue-10000, out.TotalPnL, 1e-9)
	assert.InDelta(t, 75.0, out.WinRate, 1e-9)
}

func TestRevalueSkipsUnpricedAndEmptyHoldings(t *testing.T) {
	t.Parallel()

	account := store.Account{WalletBalance: 10000}
	holdings := []store.Holding{
		{Symbol: "BTC", Quantity: 0.1, AvgEntryPrice: 95000, Leverage: 5, MarginUsed: 1900},
		{Symbol: "ETH", Quantity: 0, AvgEntryPrice: 3400, Leverage: 2, MarginUsed: 0},
	}

	// No price for BTC: margin still counts toward portfolio value, but no
	// unrealized P&L is invented.
	out := Revalue(account, holdings, map[string]float64{}, 10000)
	assert.InDelta(t, 0.0, out.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 11900.0, out.PortfolioValue, 1e-9)
}

func TestWinRateZeroWhenNoClosedTrades(t *testing.T) {
	t.Parallel()

	out := Revalue(store.Account{WalletBalance: 10000}, nil, nil, 10000)
	assert.Zero(t, out.WinRate)
	assert.Zero(t, out.TotalPnL)
}
