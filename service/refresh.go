package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/feed"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/store"
)

// PriceRefresher walks the asset catalog and refreshes each symbol's price
// and 24h change from the feeds, priming the oracle cache and updating the
// stored catalog price used for valuation.
type PriceRefresher struct {
	store   store.Store
	oracle  *oracle.Oracle
	sources map[store.AssetType]feed.Source
	logger  *zap.Logger
}

func NewPriceRefresher(st store.Store, o *oracle.Oracle, sources map[store.AssetType]feed.Source, logger *zap.Logger) *PriceRefresher {
	return &PriceRefresher{store: st, oracle: o, sources: sources, logger: logger}
}

// Refresh runs one pass. Feed failures degrade to keeping the previous
// catalog price; only a store failure aborts the tick.
func (r *PriceRefresher) Refresh(ctx context.Context) error {
	assets, err := r.store.Assets(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}

	byType := make(map[store.AssetType][]string)
	for _, a := range assets {
		byType[a.Type] = append(byType[a.Type], a.Symbol)
	}

	for t, symbols := range byType {
		src, ok := r.sources[t]
		if !ok {
			continue
		}

		quotes := r.fetch(ctx, src, symbols)
		for _, q := range quotes {
			r.oracle.Prime(q)
			if err := r.store.UpdateAssetPrice(ctx, q.Symbol, q.Price, q.Change24h); err != nil {
				return fmt.Errorf("update price %s: %w", q.Symbol, err)
			}
		}
		if len(quotes) < len(symbols) {
			r.logger.Debug("refresh: partial feed coverage",
				zap.String("source", src.Name()),
				zap.Int("asked", len(symbols)),
				zap.Int("got", len(quotes)))
		}
	}
	return nil
}

func (r *PriceRefresher) fetch(ctx context.Context, src feed.Source, symbols []string) map[string]feed.Quote {
	if batch, ok := src.(feed.BatchSource); ok {
		quotes, err := batch.Quotes(ctx, symbols)
		if err != nil {
			r.logger.Warn("refresh: batch fetch failed",
				zap.String("source", src.Name()), zap.Error(err))
			return nil
		}
		return quotes
	}

	out := make(map[string]feed.Quote, len(symbols))
	for _, s := range symbols {
		q, err := src.Quote(ctx, s)
		if err != nil {
			r.logger.Debug("refresh: fetch failed",
				zap.String("source", src.Name()),
				zap.String("symbol", s), zap.Error(err))
			continue
		}
		out[s] = q
	}
	return out
}
