package engine

import (
	"context"
	"fmt"

	"github.com/zenithtrade/papertrader/store"
)

// Analytics summarizes closed-trade performance: win/loss streaks and the
// peak-to-valley drawdown of cumulative realized P&L.
type Analytics struct {
	AccountID         string
	LongestWinStreak  int
	LongestLossStreak int
	CurrentStreak     int // positive = wins, negative = losses
	MaxDrawdown       float64
	TotalTrades       int
	WinRate           float64
}

// AccountAnalytics computes analytics from the account's trade sequence,
// oldest first.
func (e *Engine) AccountAnalytics(ctx context.Context, accountID string) (Analytics, error) {
	account, err := e.store.Account(ctx, accountID)
	if err != nil {
		return Analytics{}, err
	}

	// Trades come back newest-first; walk them in execution order.
	trades, err := e.store.Trades(ctx, accountID, 10000)
	if err != nil {
		return Analytics{}, fmt.Errorf("load trades: %w", err)
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}

	a := computeAnalytics(trades)
	a.AccountID = accountID
	a.WinRate = account.WinRate
	return a, nil
}

func computeAnalytics(trades []store.Trade) Analytics {
	var a Analytics
	var peak, cumulative float64

	for _, t := range trades {
		pnl := t.RealizedPnL

		switch {
		case pnl > 0:
			if a.CurrentStreak >= 0 {
				a.CurrentStreak++
			} else {
				a.CurrentStreak = 1
			}
			if a.CurrentStreak > a.LongestWinStreak {
				a.LongestWinStreak = a.CurrentStreak
			}
		case pnl < 0:
			if a.CurrentStreak <= 0 {
				a.CurrentStreak--
			} else {
				a.CurrentStreak = -1
			}
			if -a.CurrentStreak > a.LongestLossStreak {
				a.LongestLossStreak = -a.CurrentStreak
			}
		}

		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > a.MaxDrawdown {
			a.MaxDrawdown = dd
		}
	}

	a.TotalTrades = len(trades)
	return a
}
