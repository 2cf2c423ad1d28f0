// Package engine executes simulated leveraged trades against virtual
// accounts. It is the sole mutator of account and holding state: user
// submissions and trigger-forced closes both land in SubmitTrade, which
// serializes per account and applies each trade as one store transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenithtrade/papertrader/events"
	"github.com/zenithtrade/papertrader/oracle"
	"github.com/zenithtrade/papertrader/pkg/id"
	"github.com/zenithtrade/papertrader/store"
)

const (
	DefaultStartingBalance = 10000.00
	DefaultMaxLeverage     = 5
)

type Options struct {
	StartingBalance float64
	MaxLeverage     int
}

type Engine struct {
	store  store.Store
	oracle *oracle.Oracle
	pub    events.Publisher
	logger *zap.Logger
	opts   Options
	locks  *accountLocks
}

func New(st store.Store, o *oracle.Oracle, pub events.Publisher, opts Options, logger *zap.Logger) *Engine {
	if opts.StartingBalance <= 0 {
		opts.StartingBalance = DefaultStartingBalance
	}
	if opts.MaxLeverage < 1 {
		opts.MaxLeverage = DefaultMaxLeverage
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{
		store:  st,
		oracle: o,
		pub:    pub,
		logger: logger,
		opts:   opts,
		locks:  newAccountLocks(),
	}
}

// Provision returns the account for a session, creating it with the fixed
// starting balance on first contact.
func (e *Engine) Provision(ctx context.Context, sessionID string) (store.Account, error) {
	return e.store.GetOrCreateAccount(ctx, sessionID, e.opts.StartingBalance)
}

// SubmitTrade validates and atomically applies a buy or sell. Rejections
// (margin, holdings, unknown account or asset, bad levels) come back as
// unaccepted results with a reason and no state change; a non-nil error
// means the store failed and the transaction was rolled back.
func (e *Engine) SubmitTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	if req.Quantity <= 0 {
		return rejected(ReasonInvalidQuantity), nil
	}
	if req.Kind == "" {
		req.Kind = store.KindMarket
	}
	if req.Kind != store.KindMarket && req.Kind != store.KindLimit {
		return rejected(ReasonInvalidKind), nil
	}
	if req.Side != store.SideBuy && req.Side != store.SideSell {
		return rejected(ReasonInvalidSide), nil
	}
	if req.Leverage == 0 {
		req.Leverage = 1
	}
	if req.Leverage < 1 {
		return rejected(ReasonInvalidLeverage), nil
	}
	req.Symbol = strings.ToUpper(req.Symbol)

	// Serialize all mutations to this account; other accounts proceed.
	lk := e.locks.get(req.AccountID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return TradeResult{}, fmt.Errorf("begin trade tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	account, err := tx.Account(ctx, req.AccountID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return rejected(ReasonUnknownAccount), nil
	}
	if err != nil {
		return TradeResult{}, fmt.Errorf("load account: %w", err)
	}

	asset, err := tx.Asset(ctx, req.Symbol)
	if errors.Is(err, store.ErrAssetNotFound) {
		return rejected(ReasonUnknownAsset), nil
	}
	if err != nil {
		return TradeResult{}, fmt.Errorf("load asset: %w", err)
	}

	execPrice := e.resolvePrice(ctx, req, asset)
	leverage := clampLeverage(req.Leverage, asset.MaxLeverage, e.opts.MaxLeverage)

	qty := decimal.NewFromFloat(req.Quantity)
	price := decimal.NewFromFloat(execPrice)
	totalValue := qty.Mul(price)
	marginRequired := totalValue.Div(decimal.NewFromInt(int64(leverage)))

	var (
		realized   decimal.Decimal
		marginCost decimal.Decimal
	)

	switch req.Side {
	case store.SideBuy:
		result, ok, err := e.applyBuy(ctx, tx, &account, req, qty, price, leverage, marginRequired)
		if err != nil {
			return TradeResult{}, err
		}
		if !ok {
			return result, nil
		}
		marginCost = marginRequired

	case store.SideSell:
		var result TradeResult
		var ok bool
		result, realized, ok, err = e.applySell(ctx, tx, &account, req, qty, price)
		if err != nil {
			return TradeResult{}, err
		}
		if !ok {
			return result, nil
		}
	}

	account.TotalTrades++

	trade := store.Trade{
		ID:          id.New(),
		AccountID:   account.ID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Kind:        req.Kind,
		Quantity:    req.Quantity,
		Leverage:    leverage,
		Price:       execPrice,
		TotalValue:  totalValue.InexactFloat64(),
		MarginCost:  marginCost.InexactFloat64(),
		RealizedPnL: realized.InexactFloat64(),
		Trigger:     req.Trigger,
		ExecutedAt:  time.Now().UTC(),
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return TradeResult{}, fmt.Errorf("insert trade: %w", err)
	}

	if err := e.revalueInTx(ctx, tx, &account); err != nil {
		return TradeResult{}, err
	}
	if err := tx.SaveAccount(ctx, account); err != nil {
		return TradeResult{}, fmt.Errorf("save account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return TradeResult{}, fmt.Errorf("commit trade: %w", err)
	}
	committed = true

	e.publish(trade, account.PortfolioValue)

	e.logger.Info("trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("account", account.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("price", trade.Price),
		zap.Float64("realized_pnl", trade.RealizedPnL),
		zap.String("trigger", trade.Trigger))

	return TradeResult{
		Accepted:    true,
		TradeID:     trade.ID,
		Price:       execPrice,
		TotalValue:  trade.TotalValue,
		MarginUsed:  trade.MarginCost,
		RealizedPnL: trade.RealizedPnL,
		NewBalance:  account.WalletBalance,
	}, nil
}

// resolvePrice picks the execution price. Market orders ask the oracle;
// limit orders execute immediately at the supplied price. If the oracle
// could only offer the static table but the catalog has a real price, the
// catalog wins.
func (e *Engine) resolvePrice(ctx context.Context, req TradeRequest, asset store.Asset) float64 {
	if req.Kind == store.KindLimit && req.LimitPrice != nil && *req.LimitPrice > 0 {
		return *req.LimitPrice
	}

	q := e.oracle.GetPrice(ctx, asset.Symbol, asset.Type)
	if q.Stale && q.Source == "static" && asset.CurrentPrice > 0 {
		return asset.CurrentPrice
	}
	return q.Price
}

func clampLeverage(requested, assetMax, globalMax int) int {
	lev := requested
	if assetMax > 0 && lev > assetMax {
		lev = assetMax
	}
	if lev > globalMax {
		lev = globalMax
	}
	if lev < 1 {
		lev = 1
	}
	return lev
}

func (e *Engine) applyBuy(ctx context.Context, tx store.Tx, account *store.Account, req TradeRequest,
	qty, price decimal.Decimal, leverage int, marginRequired decimal.Decimal) (TradeResult, bool, error) {

	available := decimal.NewFromFloat(account.AvailableMargin)
	if marginRequired.GreaterThan(available) {
		e.logger.Debug("buy rejected: margin",
			zap.String("account", account.ID),
			zap.String("required", marginRequired.StringFixed(2)),
			zap.String("available", available.StringFixed(2)))
		return rejected(ReasonInsufficientMargin), false, nil
	}

	execPrice := price.InexactFloat64()
	if req.StopLoss != nil && *req.StopLoss >= execPrice {
		return rejected(ReasonStopLossAboveEntry), false, nil
	}
	if req.TakeProfit != nil && *req.TakeProfit <= execPrice {
		return rejected(ReasonTakeProfitBelowEntry), false, nil
	}

	holding, err := tx.Holding(ctx, account.ID, req.Symbol)
	switch {
	case errors.Is(err, store.ErrHoldingNotFound):
		holding = store.Holding{
			AccountID:     account.ID,
			Symbol:        req.Symbol,
			Quantity:      qty.InexactFloat64(),
			AvgEntryPrice: execPrice,
			Leverage:      leverage,
			MarginUsed:    marginRequired.InexactFloat64(),
			StopLoss:      req.StopLoss,
			TakeProfit:    req.TakeProfit,
		}

	case err != nil:
		return TradeResult{}, false, fmt.Errorf("load holding: %w", err)

	default:
		// Merge: entry price becomes the quantity-weighted average of the
		// old position and this fill.
		oldQty := decimal.NewFromFloat(holding.Quantity)
		oldAvg := decimal.NewFromFloat(holding.AvgEntryPrice)
		newQty := oldQty.Add(qty)
		newAvg := oldAvg.Mul(oldQty).Add(price.Mul(qty)).Div(newQty)

		holding.Quantity = newQty.InexactFloat64()
		holding.AvgEntryPrice = newAvg.InexactFloat64()
		holding.MarginUsed = decimal.NewFromFloat(holding.MarginUsed).Add(marginRequired).InexactFloat64()
		holding.Leverage = leverage
		if req.StopLoss != nil {
			holding.StopLoss = req.StopLoss
		}
		if req.TakeProfit != nil {
			holding.TakeProfit = req.TakeProfit
		}
	}

	if err := tx.UpsertHolding(ctx, holding); err != nil {
		return TradeResult{}, false, fmt.Errorf("upsert holding: %w", err)
	}

	account.MarginUsed = decimal.NewFromFloat(account.MarginUsed).Add(marginRequired).InexactFloat64()
	account.AvailableMargin = available.Sub(marginRequired).InexactFloat64()
	return TradeResult{}, true, nil
}

func (e *Engine) applySell(ctx context.Context, tx store.Tx, account *store.Account, req TradeRequest,
	qty, price decimal.Decimal) (TradeResult, decimal.Decimal, bool, error) {

	zero := decimal.Zero

	holding, err := tx.Holding(ctx, account.ID, req.Symbol)
	if errors.Is(err, store.ErrHoldingNotFound) {
		return rejected(ReasonInsufficientHoldings), zero, false, nil
	}
	if err != nil {
		return TradeResult{}, zero, false, fmt.Errorf("load holding: %w", err)
	}

	heldQty := decimal.NewFromFloat(holding.Quantity)
	if heldQty.LessThan(qty) {
		return rejected(ReasonInsufficientHoldings), zero, false, nil
	}

	avg := decimal.NewFromFloat(holding.AvgEntryPrice)
	holdLev := decimal.NewFromInt(int64(holding.Leverage))

	// Realized P&L scales with the holding's leverage; margin is released
	// in proportion to the quantity closed.
	realized := price.Sub(avg).Mul(qty).Mul(holdLev)
	marginRelease := decimal.NewFromFloat(holding.MarginUsed).Mul(qty.Div(heldQty))

	newQty := heldQty.Sub(qty)
	if newQty.LessThanOrEqual(zero) {
		if err := tx.DeleteHolding(ctx, account.ID, req.Symbol); err != nil {
			return TradeResult{}, zero, false, fmt.Errorf("delete holding: %w", err)
		}
	} else {
		holding.Quantity = newQty.InexactFloat64()
		holding.MarginUsed = decimal.NewFromFloat(holding.MarginUsed).Sub(marginRelease).InexactFloat64()
		if err := tx.UpsertHolding(ctx, holding); err != nil {
			return TradeResult{}, zero, false, fmt.Errorf("update holding: %w", err)
		}
	}

	// Wallet receives released margin + sale proceeds + realized P&L.
	proceeds := qty.Mul(price)
	account.WalletBalance = decimal.NewFromFloat(account.WalletBalance).
		Add(marginRelease).Add(proceeds).Add(realized).InexactFloat64()
	account.MarginUsed = decimal.NewFromFloat(account.MarginUsed).Sub(marginRelease).InexactFloat64()
	account.AvailableMargin = decimal.NewFromFloat(account.AvailableMargin).Add(marginRelease).InexactFloat64()
	account.RealizedPnL = decimal.NewFromFloat(account.RealizedPnL).Add(realized).InexactFloat64()

	switch {
	case realized.IsPositive():
		account.WinningTrades++
	case realized.IsNegative():
		account.LosingTrades++
	}

	return TradeResult{}, realized, true, nil
}

// revalueInTx refreshes the derived account fields from the holdings and
// catalog prices visible inside the transaction.
func (e *Engine) revalueInTx(ctx context.Context, tx store.Tx, account *store.Account) error {
	holdings, err := tx.Holdings(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}

	prices := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		asset, err := tx.Asset(ctx, h.Symbol)
		if err != nil {
			return fmt.Errorf("load asset %s: %w", h.Symbol, err)
		}
		prices[h.Symbol] = asset.CurrentPrice
	}

	*account = Revalue(*account, holdings, prices, e.opts.StartingBalance)
	return nil
}

// publish fans the committed trade out to the event publisher without
// blocking the caller. Publish failure is logged and otherwise ignored.
func (e *Engine) publish(t store.Trade, portfolioValue float64) {
	ev := events.TradeEvent{
		ID:             events.NewEventID(),
		AccountID:      t.AccountID,
		Symbol:         t.Symbol,
		Side:           t.Side,
		Quantity:       t.Quantity,
		Leverage:       t.Leverage,
		Price:          t.Price,
		TotalValue:     t.TotalValue,
		RealizedPnL:    t.RealizedPnL,
		Trigger:        t.Trigger,
		PortfolioValue: portfolioValue,
		ExecutedAt:     t.ExecutedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.pub.PublishTrade(ctx, ev); err != nil {
			e.logger.Warn("publish trade event", zap.Error(err), zap.String("trade_id", t.ID))
		}
	}()
}
