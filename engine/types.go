package engine

import (
	"github.com/zenithtrade/papertrader/store"
)

// TradeRequest is a buy or sell submission. Trigger is set only by the
// trigger monitor when it forces a close; user submissions leave it empty.
type TradeRequest struct {
	AccountID  string
	Symbol     string
	Side       string // store.SideBuy or store.SideSell
	Kind       string // store.KindMarket or store.KindLimit
	Quantity   float64
	Leverage   int
	LimitPrice *float64
	StopLoss   *float64
	TakeProfit *float64
	Trigger    string
}

// Rejection reasons. A rejected trade is an outcome, not an error: state is
// untouched and the caller decides what to do next.
const (
	ReasonInsufficientMargin   = "insufficient margin"
	ReasonInsufficientHoldings = "insufficient holdings"
	ReasonInvalidQuantity      = "quantity must be positive"
	ReasonInvalidLeverage      = "leverage must be at least 1"
	ReasonInvalidSide          = "unknown trade side"
	ReasonInvalidKind          = "unknown order kind"
	ReasonStopLossAboveEntry   = "stop-loss must be below execution price"
	ReasonTakeProfitBelowEntry = "take-profit must be above execution price"
	ReasonUnknownAccount       = "account not found"
	ReasonUnknownAsset         = "asset not found"
)

// TradeResult reports what the executor did. When Accepted is false, Reason
// says why and nothing was persisted.
type TradeResult struct {
	Accepted    bool
	Reason      string
	TradeID     string
	Price       float64
	TotalValue  float64
	MarginUsed  float64
	RealizedPnL float64
	NewBalance  float64
}

func rejected(reason string) TradeResult {
	return TradeResult{Accepted: false, Reason: reason}
}

// HoldingView is a holding plus its mark-to-market numbers.
type HoldingView struct {
	store.Holding
	CurrentPrice  float64
	CurrentValue  float64
	UnrealizedPnL float64
}

// PortfolioView is the full account snapshot returned to callers.
type PortfolioView struct {
	Account  store.Account
	Holdings []HoldingView
}
