package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/engine"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/store"
)

// executor is the slice of the engine the monitor needs.
type executor interface {
	SubmitTrade(ctx context.Context, req engine.TradeRequest) (engine.TradeResult, error)
}

// priceSource is the slice of the oracle the monitor needs.
type priceSource interface {
	GetPrice(ctx context.Context, symbol string, t store.AssetType) oracle.Quote
}

// TriggerMonitor sweeps holdings with a stop-loss or take-profit set and
// forces a full-quantity sell through the executor when the live price
// crosses a threshold. Idempotency is structural: the executor re-reads the
// holding under the account lock, so a sweep that races a close sees no
// holding and rejects, which the monitor treats as a no-op.
type TriggerMonitor struct {
	store  store.Store
	prices priceSource
	exec   executor
	logger *zap.Logger
}

func NewTriggerMonitor(st store.Store, prices priceSource, exec executor, logger *zap.Logger) *TriggerMonitor {
	return &TriggerMonitor{store: st, prices: prices, exec: exec, logger: logger}
}

// Sweep checks every armed holding once. Per-holding failures are logged
// and the sweep continues; the first store-level failure aborts the tick.
func (m *TriggerMonitor) Sweep(ctx context.Context) error {
	holdings, err := m.store.TriggerHoldings(ctx)
	if err != nil {
		return fmt.Errorf("list trigger holdings: %w", err)
	}

	for _, h := range holdings {
		asset, err := m.store.Asset(ctx, h.Symbol)
		if err != nil {
			m.logger.Warn("trigger sweep: asset lookup failed",
				zap.String("symbol", h.Symbol), zap.Error(err))
			continue
		}

		q := m.prices.GetPrice(ctx, h.Symbol, asset.Type)
		if q.Stale {
			// A forced close must act on a near-fresh price; skip and let
			// the next sweep retry.
			m.logger.Debug("trigger sweep: stale price, skipping",
				zap.String("symbol", h.Symbol),
				zap.String("account", h.AccountID))
			continue
		}

		kind := triggerKind(h, q.Price)
		if kind == "" {
			continue
		}

		m.fire(ctx, h, kind, q.Price)
	}
	return nil
}

func triggerKind(h store.Holding, price float64) string {
	if h.StopLoss != nil && price <= *h.StopLoss {
		return store.TriggerStopLoss
	}
	if h.TakeProfit != nil && price >= *h.TakeProfit {
		return store.TriggerTakeProfit
	}
	return ""
}

func (m *TriggerMonitor) fire(ctx context.Context, h store.Holding, kind string, price float64) {
	res, err := m.exec.SubmitTrade(ctx, engine.TradeRequest{
		AccountID: h.AccountID,
		Symbol:    h.Symbol,
		Side:      store.SideSell,
		Kind:      store.KindMarket,
		Quantity:  h.Quantity,
		Leverage:  1,
		Trigger:   kind,
	})
	if err != nil {
		m.logger.Error("trigger close failed",
			zap.String("account", h.AccountID),
			zap.String("symbol", h.Symbol),
			zap.String("trigger", kind),
			zap.Error(err))
		return
	}
	if !res.Accepted {
		// Holding already closed by the user or an overlapping sweep.
		m.logger.Debug("trigger close was a no-op",
			zap.String("account", h.AccountID),
			zap.String("symbol", h.Symbol),
			zap.String("reason", res.Reason))
		return
	}

	m.logger.Info("trigger fired",
		zap.String("account", h.AccountID),
		zap.String("symbol", h.Symbol),
		zap.String("trigger", kind),
		zap.Float64("price", price),
		zap.Float64("realized_pnl", res.RealizedPnL))
}
