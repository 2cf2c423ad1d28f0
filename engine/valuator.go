package engine

import "github.com/zenithtrade/papertrader/store"

// The valuator is a pure function of account + open holdings + a price set.
// It writes nothing; callers persist the returned account inside their own
// transaction.

// HoldingUnrealizedPnL marks one holding to market. P&L scales with the
// holding's leverage, matching how realized P&L is computed on close.
func HoldingUnrealizedPnL(h store.Holding, price float64) float64 {
	return (price - h.AvgEntryPrice) * h.Quantity * float64(h.Leverage)
}

// Revalue recomputes the derived account fields for the given price set and
// returns the updated account. Prices are keyed by symbol; a holding with no
// price contributes its margin but zero unrealized P&L.
func Revalue(a store.Account, holdings []store.Holding, prices map[string]float64, startingBalance float64) store.Account {
	var unrealized, holdingsValue float64

	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		upl := 0.0
		if p, ok := prices[h.Symbol]; ok {
			upl = HoldingUnrealizedPnL(h, p)
		}
		unrealized += upl
		holdingsValue += h.MarginUsed + upl
	}

	a.UnrealizedPnL = unrealized
	a.PortfolioValue = a.WalletBalance + holdingsValue
	a.TotalPnL = a.PortfolioValue - startingBalance
	a.WinRate = winRate(a.WinningTrades, a.LosingTrades)
	return a
}

func winRate(wins, losses int) float64 {
	closed := wins + losses
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed) * 100
}
