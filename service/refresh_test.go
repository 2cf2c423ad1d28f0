package service

import (
	"context"
	"errors"
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

type fakeFeed struct {
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Quote(_ context.Context, symbol string) (feed.Quote, error) {
	f.calls++
	if f.err != nil {
		return feed.Quote{}, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return feed.Quote{}, errors.New("no price")
	}
	return feed.Quote{Symbol: symbol, Price: p, Change24h: 1.5, Time: time.Now().UTC()}, nil
}

type fakeBatchFeed struct {
	fakeFeed
	batchCalls int
}

func (f *fakeBatchFeed) Quotes(_ context.Context, symbols []string) (map[string]feed.Quote, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]feed.Quote)
	now := time.Now().UTC()
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = feed.Quote{Symbol: s, Price: p, Change24h: 1.5, Time: now}
		}
	}
	return out, nil
}

func newRefreshFixture(t *testing.T) (store.Store, *oracle.Oracle) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.SeedAssets(context.Background(), []store.Asset{
		{Symbol: "BTC", Name: "Bitcoin", Type: store.AssetCrypto, CurrentPrice: 95000, MaxLeverage: 5, Active: true},
		{Symbol: "ETH", Name: "Ethereum", Type: store.AssetCrypto, CurrentPrice: 3400, MaxLeverage: 5, Active: true},
	}))

	o, err := oracle.New(oracle.Options{TTL: time.Minute, FetchTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)

	return st, o
}

func TestRefreshUpdatesCatalogAndPrimesOracle(t *testing.T) {
	t.Parallel()
	st, o := newRefreshFixture(t)
	ctx := context.Background()

	src := &fakeFeed{prices: map[string]float64{"BTC": 96500, "ETH": 3500}}
	r := NewPriceRefresher(st, o, map[store.AssetType]feed.Source{store.AssetCrypto: src}, zap.NewNop())

	require.NoError(t, r.Refresh(ctx))

	a, err := st.Asset(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 96500.0, a.CurrentPrice, 1e-9)
	assert.InDelta(t, 1.5, a.PriceChange24h, 1e-9)

	o.Wait()
	q := o.GetPrice(ctx, "ETH", store.AssetCrypto)
	assert.False(t, q.Stale)
	assert.InDelta(t, 3500.0, q.Price, 1e-9)
}

func TestRefreshPrefersBatchSource(t *testing.T) {
	t.Parallel()
	st, o := newRefreshFixture(t)

	src := &fakeBatchFeed{fakeFeed: fakeFeed{prices: map[string]float64{"BTC": 96500, "ETH": 3500}}}
	r := NewPriceRefresher(st, o, map[store.AssetType]feed.Source{store.AssetCrypto: src}, zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, src.batchCalls, "both symbols should go in one batch call")
	assert.Zero(t, src.calls)
}

func TestRefreshKeepsOldPriceWhenFeedFails(t *testing.T) {
	t.Parallel()
	st, o := newRefreshFixture(t)
	ctx := context.Background()

	src := &fakeFeed{err: errors.New("down")}
	r := NewPriceRefresher(st, o, map[store.AssetType]feed.Source{store.AssetCrypto: src}, zap.NewNop())

	require.NoError(t, r.Refresh(ctx), "feed outage is not a tick failure")

	a, err := st.Asset(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 95000.0, a.CurrentPrice, 1e-9, "seeded price must survive the outage")
}

func TestSnapshotterRecordsEveryAccount(t *testing.T) {
	t.Parallel()
	st, _ := newRefreshFixture(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		_, err := st.GetOrCreateAccount(ctx, id, 10000)
		require.NoError(t, err)
	}

	snap := NewSnapshotter(st, zap.NewNop())
	require.NoError(t, snap.Snapshot(ctx))
	require.NoError(t, snap.Snapshot(ctx))

	for _, id := range []string{"a1", "a2"} {
		points, err := st.Snapshots(ctx, id, time.Time{})
		require.NoError(t, err)
		assert.Len(t, points, 2)
		assert.InDelta(t, 10000.0, points[0].PortfolioValue, 1e-9)
	}
}
