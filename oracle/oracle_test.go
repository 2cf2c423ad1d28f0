package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/store"
)

// fakeSource serves a fixed price and counts calls; set fail to simulate an
// outage.
type fakeSource struct {
	name  string
	price float64
	fail  atomic.Bool
	calls atomic.Int64
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Quote(_ context.Context, symbol string) (feed.Quote, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return feed.Quote{}, errors.New("feed down")
	}
	return feed.Quote{Symbol: symbol, Price: f.price, Time: time.Now().UTC()}, nil
}

func newTestOracle(t *testing.T, ttl time.Duration) *Oracle {
	t.Helper()
	o, err := New(Options{TTL: ttl, FetchTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestGetPriceFetchesAndCaches(t *testing.T) {
	t.Parallel()
	o := newTestOracle(t, time.Minute)
	src := &fakeSource{name: "fake", price: 95000}
	o.RegisterSource(store.AssetCrypto, src)

	q := o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	assert.False(t, q.Stale)
	assert.Equal(t, "fake", q.Source)
	assert.InDelta(t, 95000.0, q.Price, 1e-9)
	assert.Equal(t, int64(1), src.calls.Load())

	// Within the TTL the cache answers; the feed is not asked again.
	o.Wait()
	q = o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	assert.False(t, q.Stale)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestGetPriceFallsBackToLastKnown(t *testing.T) {
	t.Parallel()
	o := newTestOracle(t, 20*time.Millisecond)
	src := &fakeSource{name: "fake", price: 95000}
	o.RegisterSource(store.AssetCrypto, src)

	q := o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	require.False(t, q.Stale)

	// Cache expires and the feed dies: callers still get the last real
	// price, flagged stale.
	src.fail.Store(true)
	time.Sleep(50 * time.Millisecond)

	q = o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	assert.True(t, q.Stale)
	assert.InDelta(t, 95000.0, q.Price, 1e-9)
}

func TestGetPriceFallsBackToStaticTable(t *testing.T) {
	t.Parallel()
	o := newTestOracle(t, time.Minute)

	// No sources registered and nothing ever seen: static table.
	q := o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	assert.True(t, q.Stale)
	assert.Equal(t, "static", q.Source)
	assert.InDelta(t, feed.FallbackPrice("BTC"), q.Price, 1e-9)

	// Unknown symbols get the default price.
	q = o.GetPrice(context.Background(), "WHAT", store.AssetCrypto)
	assert.True(t, q.Stale)
	assert.InDelta(t, feed.DefaultFallbackPrice, q.Price, 1e-9)
}

func TestGetPriceSkipsFailingSource(t *testing.T) {
	t.Parallel()
	o := newTestOracle(t, time.Minute)

	dead := &fakeSource{name: "dead", price: 1}
	dead.fail.Store(true)
	alive := &fakeSource{name: "alive", price: 3400}
	o.RegisterSource(store.AssetCrypto, dead)
	o.RegisterSource(store.AssetCrypto, alive)

	q := o.GetPrice(context.Background(), "ETH", store.AssetCrypto)
	assert.False(t, q.Stale)
	assert.Equal(t, "alive", q.Source)
	assert.InDelta(t, 3400.0, q.Price, 1e-9)
	assert.Equal(t, int64(1), dead.calls.Load())
}

func TestPrimeServesWithoutAnyFetch(t *testing.T) {
	t.Parallel()
	o := newTestOracle(t, time.Minute)

	o.Prime(feed.Quote{Symbol: "BTC", Price: 97000, Time: time.Now().UTC()})
	o.Wait()

	q := o.GetPrice(context.Background(), "BTC", store.AssetCrypto)
	assert.False(t, q.Stale)
	assert.InDelta(t, 97000.0, q.Price, 1e-9)
}
