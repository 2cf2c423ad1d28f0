// Package oracle serves spot prices from a short-TTL cache over the external
// feeds. Callers never block past the fetch timeout and never see a hard
// failure: a dead feed degrades to the last known price, then to the static
// fallback table, with the degradation flagged and logged.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/store"
)

// Quote is a price observation plus provenance. Stale means the price did
// not come from a live feed inside the cache TTL; trigger decisions must
// not act on stale quotes.
type Quote struct {
	Symbol    string
	Price     float64
	Change24h float64
	FetchedAt time.Time
	Stale     bool
	Source    string
}

type Options struct {
	TTL          time.Duration // cache freshness window
	FetchTimeout time.Duration // bound on one feed round trip
}

type Oracle struct {
	cache   *ristretto.Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	sources map[store.AssetType][]feed.Source

	// lastKnown survives cache expiry so feed outages degrade to the most
	// recent real price instead of the static table.
	lastKnown sync.Map // symbol -> Quote
}

func New(opts Options, logger *zap.Logger) (*Oracle, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Oracle{
		cache:   cache,
		ttl:     opts.TTL,
		timeout: opts.FetchTimeout,
		logger:  logger,
		sources: make(map[store.AssetType][]feed.Source),
	}, nil
}

// RegisterSource appends a feed for an asset class. Sources are tried in
// registration order.
func (o *Oracle) RegisterSource(t store.AssetType, src feed.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[t] = append(o.sources[t], src)
}

// GetPrice returns a quote for the symbol. The Stale flag is the staleness
// contract: false means the price was observed by a live feed within the
// cache TTL.
func (o *Oracle) GetPrice(ctx context.Context, symbol string, t store.AssetType) Quote {
	if v, ok := o.cache.Get(symbol); ok {
		q := v.(Quote)
		return q
	}

	if q, name, ok := o.fetch(ctx, symbol, t); ok {
		quote := o.toQuote(q)
		quote.Source = name
		o.cache.SetWithTTL(symbol, quote, 1, o.ttl)
		o.lastKnown.Store(symbol, quote)
		return quote
	}

	// Feeds failed or none registered: degrade, loudly.
	if v, ok := o.lastKnown.Load(symbol); ok {
		q := v.(Quote)
		q.Stale = true
		o.logger.Warn("price fallback to last known",
			zap.String("symbol", symbol),
			zap.Time("fetched_at", q.FetchedAt))
		return q
	}

	o.logger.Warn("price fallback to static table", zap.String("symbol", symbol))
	return Quote{
		Symbol:    symbol,
		Price:     feed.FallbackPrice(symbol),
		FetchedAt: time.Now().UTC(),
		Stale:     true,
		Source:    "static",
	}
}

func (o *Oracle) fetch(ctx context.Context, symbol string, t store.AssetType) (feed.Quote, string, bool) {
	o.mu.RLock()
	sources := o.sources[t]
	o.mu.RUnlock()

	for _, src := range sources {
		fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
		q, err := src.Quote(fetchCtx, symbol)
		cancel()
		if err != nil {
			o.logger.Debug("feed fetch failed",
				zap.String("source", src.Name()),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		if q.Price > 0 {
			q.Symbol = symbol
			return q, src.Name(), true
		}
	}
	return feed.Quote{}, "", false
}

// Prime inserts a feed observation into the cache and the last-known map.
// The refresher loop and the binance stream both push through here.
func (o *Oracle) Prime(q feed.Quote) {
	quote := o.toQuote(q)
	o.cache.SetWithTTL(q.Symbol, quote, 1, o.ttl)
	o.lastKnown.Store(q.Symbol, quote)
}

// Wait flushes pending cache writes. Tests only.
func (o *Oracle) Wait() { o.cache.Wait() }

func (o *Oracle) toQuote(q feed.Quote) Quote {
	return Quote{
		Symbol:    q.Symbol,
		Price:     q.Price,
		Change24h: q.Change24h,
		FetchedAt: q.Time,
		Stale:     false,
		Source:    "feed",
	}
}
