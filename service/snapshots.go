package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/store"
)

// Snapshotter appends one portfolio-value point per account to the
// time series used for charting. Runs on a much longer interval than the
// other loops; snapshots are append-only and never revised.
type Snapshotter struct {
	store  store.Store
	logger *zap.Logger
}

func NewSnapshotter(st store.Store, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{store: st, logger: logger}
}

func (s *Snapshotter) Snapshot(ctx context.Context) error {
	ids, err := s.store.AccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range ids {
		account, err := s.store.Account(ctx, id)
		if err != nil {
			s.logger.Warn("snapshot: account load failed",
				zap.String("account", id), zap.Error(err))
			continue
		}
		err = s.store.InsertSnapshot(ctx, store.Snapshot{
			AccountID:      account.ID,
			PortfolioValue: account.PortfolioValue,
			WalletBalance:  account.WalletBalance,
			TotalPnL:       account.TotalPnL,
			TakenAt:        now,
		})
		if err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", id, err)
		}
	}
	return nil
}
