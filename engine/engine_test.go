package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store, *oracle.Oracle) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	o, err := oracle.New(oracle.Options{TTL: time.Minute, FetchTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)

	err = st.SeedAssets(context.Background(), []store.Asset{
		{Symbol: "BTC", Name: "Bitcoin", Type: store.AssetCrypto, MaxLeverage: 5, Active: true},
		{Symbol: "DOGE", Name: "Dogecoin", Type: store.AssetCrypto, MaxLeverage: 2, Active: true},
	})
	require.NoError(t, err)

	return New(st, o, nil, Options{}, zap.NewNop()), st, o
}

func provision(t *testing.T, e *Engine) store.Account {
	t.Helper()
	account, err := e.Provision(context.Background(), "session-1")
	require.NoError(t, err)
	return account
}

// setPrice primes the oracle cache and the stored catalog price, the way the
// refresh loop does in production.
func setPrice(t *testing.T, st store.Store, o *oracle.Oracle, symbol string, price float64) {
	t.Helper()
	o.Prime(feed.Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()})
	o.Wait()
	require.NoError(t, st.UpdateAssetPrice(context.Background(), symbol, price, 0))
}

func ptr(f float64) *float64 { return &f }

func TestProvisionCreatesAccountOnce(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)

	first := provision(t, e)
	assert.Equal(t, DefaultStartingBalance, first.WalletBalance)
	assert.Equal(t, DefaultStartingBalance, first.AvailableMargin)
	assert.Equal(t, DefaultStartingBalance, first.PortfolioValue)

	// A second provision for the same session is a lookup, not a reset.
	again := provision(t, e)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.WalletBalance, again.WalletBalance)
}

func TestBuyRejectedWhenMarginInsufficient(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)

	// 1.0 BTC at 95k with 5x needs 19k margin against 10k available.
	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 1.0, Leverage: 5,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInsufficientMargin, res.Reason)

	// Rejection leaves every balance untouched.
	after, err := st.Account(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.WalletBalance, after.WalletBalance)
	assert.Equal(t, account.AvailableMargin, after.AvailableMargin)
	assert.Zero(t, after.MarginUsed)
	assert.Zero(t, after.TotalTrades)

	holdings, err := st.Holdings(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestBuyOpensLeveragedHolding(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)

	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	assert.InDelta(t, 95000.0, res.Price, 1e-9)
	assert.InDelta(t, 9500.0, res.TotalValue, 1e-9)
	assert.InDelta(t, 1900.0, res.MarginUsed, 1e-9)

	holdings, err := st.Holdings(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.InDelta(t, 0.1, h.Quantity, 1e-9)
	assert.InDelta(t, 95000.0, h.AvgEntryPrice, 1e-9)
	assert.Equal(t, 5, h.Leverage)
	assert.InDelta(t, 1900.0, h.MarginUsed, 1e-9)

	after, err := st.Account(context.Background(), account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, after.WalletBalance, 1e-9)
	assert.InDelta(t, 1900.0, after.MarginUsed, 1e-9)
	assert.InDelta(t, 8100.0, after.AvailableMargin, 1e-9)
	assert.Equal(t, 1, after.TotalTrades)
}

func TestSellRealizesLeveragedPnL(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	setPrice(t, st, o, "BTC", 95000)
	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	setPrice(t, st, o, "BTC", 100000)
	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideSell,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	// (100000 - 95000) * 0.1 * 5x = 2500.
	assert.InDelta(t, 2500.0, res.RealizedPnL, 1e-9)

	// Wallet receives released margin + proceeds + realized P&L.
	assert.InDelta(t, 10000.0+1900.0+10000.0+2500.0, res.NewBalance, 1e-9)

	holdings, err := st.Holdings(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, holdings, "fully closed holding must be deleted")

	after, err := st.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, after.MarginUsed)
	assert.InDelta(t, 2500.0, after.RealizedPnL, 1e-9)
	assert.Equal(t, 1, after.WinningTrades)
	assert.Equal(t, 0, after.LosingTrades)
	assert.InDelta(t, 100.0, after.WinRate, 1e-9)
	assert.Equal(t, 2, after.TotalTrades)
}

func TestBuyMergesWithWeightedAverage(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	setPrice(t, st, o, "BTC", 95000)
	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	setPrice(t, st, o, "BTC", 105000)
	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5, TakeProfit: ptr(150000),
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	holdings, err := st.Holdings(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.InDelta(t, 0.2, h.Quantity, 1e-9)
	assert.InDelta(t, 100000.0, h.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 1900.0+2100.0, h.MarginUsed, 1e-9)
	require.NotNil(t, h.TakeProfit)
	assert.InDelta(t, 150000.0, *h.TakeProfit, 1e-9)
	assert.Nil(t, h.StopLoss, "merge must not invent a stop-loss")
}

func TestPartialSellReleasesProportionalMargin(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	setPrice(t, st, o, "BTC", 95000)
	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.2, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideSell,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	assert.InDelta(t, 0.0, res.RealizedPnL, 1e-9)

	holdings, err := st.Holdings(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 0.1, holdings[0].Quantity, 1e-9)
	assert.InDelta(t, 1900.0, holdings[0].MarginUsed, 1e-9)

	after, err := st.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1900.0, after.MarginUsed, 1e-9)
	// Flat sale: neither a win nor a loss.
	assert.Zero(t, after.WinningTrades)
	assert.Zero(t, after.LosingTrades)
}

func TestSellMoreThanHeldRejected(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	setPrice(t, st, o, "BTC", 95000)
	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideSell,
		Quantity: 0.2,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInsufficientHoldings, res.Reason)

	holdings, err := st.Holdings(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 0.1, holdings[0].Quantity, 1e-9)
}

func TestSellWithoutHoldingRejected(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)

	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideSell,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInsufficientHoldings, res.Reason)
}

func TestLeverageClampedToAssetMax(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "DOGE", 0.40)

	// DOGE caps at 2x even though 5x is requested and globally allowed.
	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "DOGE", Side: store.SideBuy,
		Quantity: 100, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	assert.InDelta(t, 20.0, res.MarginUsed, 1e-9)

	holdings, err := st.Holdings(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, 2, holdings[0].Leverage)
}

func TestStopLossAndTakeProfitLevelValidation(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)
	ctx := context.Background()

	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.01, Leverage: 2, StopLoss: ptr(96000),
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonStopLossAboveEntry, res.Reason)

	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.01, Leverage: 2, TakeProfit: ptr(90000),
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonTakeProfitBelowEntry, res.Reason)

	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.01, Leverage: 2, StopLoss: ptr(90000), TakeProfit: ptr(99000),
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted, res.Reason)
}

func TestLimitOrderExecutesAtLimitPrice(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)

	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Kind: store.KindLimit, Quantity: 0.1, Leverage: 5, LimitPrice: ptr(90000),
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	assert.InDelta(t, 90000.0, res.Price, 1e-9)
	assert.InDelta(t, 1800.0, res.MarginUsed, 1e-9)
}

func TestInvalidSubmissionsRejected(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	cases := []struct {
		name   string
		req    TradeRequest
		reason string
	}{
		{"zero quantity", TradeRequest{AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy}, ReasonInvalidQuantity},
		{"negative quantity", TradeRequest{AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy, Quantity: -1}, ReasonInvalidQuantity},
		{"bad side", TradeRequest{AccountID: account.ID, Symbol: "BTC", Side: "short", Quantity: 1}, ReasonInvalidSide},
		{"bad kind", TradeRequest{AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy, Kind: "stop", Quantity: 1}, ReasonInvalidKind},
		{"negative leverage", TradeRequest{AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy, Quantity: 1, Leverage: -2}, ReasonInvalidLeverage},
		{"unknown asset", TradeRequest{AccountID: account.ID, Symbol: "SHIB", Side: store.SideBuy, Quantity: 1}, ReasonUnknownAsset},
		{"unknown account", TradeRequest{AccountID: "nobody", Symbol: "BTC", Side: store.SideBuy, Quantity: 1}, ReasonUnknownAccount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.SubmitTrade(ctx, tc.req)
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestSymbolIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	setPrice(t, st, o, "BTC", 95000)

	res, err := e.SubmitTrade(context.Background(), TradeRequest{
		AccountID: account.ID, Symbol: "btc", Side: store.SideBuy,
		Quantity: 0.01, Leverage: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted, res.Reason)

	holdings, err := st.Holdings(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Symbol)
}

func TestLosingSellCountsAsLoss(t *testing.T) {
	t.Parallel()
	e, st, o := newTestEngine(t)
	account := provision(t, e)
	ctx := context.Background()

	setPrice(t, st, o, "BTC", 95000)
	res, err := e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideBuy,
		Quantity: 0.1, Leverage: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)

	setPrice(t, st, o, "BTC", 90000)
	res, err = e.SubmitTrade(ctx, TradeRequest{
		AccountID: account.ID, Symbol: "BTC", Side: store.SideSell,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Reason)
	assert.InDelta(t, -2500.0, res.RealizedPnL, 1e-9)

	after, err := st.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.LosingTrades)
	assert.Zero(t, after.WinningTrades)
	assert.InDelta(t, 0.0, after.WinRate, 1e-9)
}
