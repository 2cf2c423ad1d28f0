package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zenithtrade/papertrader/store"
)

const defaultHistoryLimit = 50

// Portfolio returns the account plus its open holdings marked to the
// catalog prices. Read-only; no lock is taken.
func (e *Engine) Portfolio(ctx context.Context, accountID string) (PortfolioView, error) {
	account, err := e.store.Account(ctx, accountID)
	if err != nil {
		return PortfolioView{}, err
	}

	holdings, err := e.store.Holdings(ctx, accountID)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("load holdings: %w", err)
	}

	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		asset, err := e.store.Asset(ctx, h.Symbol)
		if err != nil {
			return PortfolioView{}, fmt.Errorf("load asset %s: %w", h.Symbol, err)
		}
		views = append(views, HoldingView{
			Holding:       h,
			CurrentPrice:  asset.CurrentPrice,
			CurrentValue:  h.Quantity * asset.CurrentPrice,
			UnrealizedPnL: HoldingUnrealizedPnL(h, asset.CurrentPrice),
		})
	}

	return PortfolioView{Account: account, Holdings: views}, nil
}

// TradeHistory returns the account's most recent trades, newest first.
func (e *Engine) TradeHistory(ctx context.Context, accountID string, limit int) ([]store.Trade, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if _, err := e.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.Trades(ctx, accountID, limit)
}

// Leaderboard ranks accounts by portfolio value.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.store.Leaderboard(ctx, limit)
}

// PortfolioHistory returns snapshot points since the given time.
func (e *Engine) PortfolioHistory(ctx context.Context, accountID string, since time.Time) ([]store.Snapshot, error) {
	return e.store.Snapshots(ctx, accountID, since)
}
