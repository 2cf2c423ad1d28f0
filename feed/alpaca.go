package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Alpaca fetches equity spot prices from the Alpaca market-data API. API
// keys are read from the environment by the client (APCA_API_KEY_ID /
// APCA_API_SECRET_KEY), same as the rest of the alpaca SDK.
type Alpaca struct {
	md *marketdata.Client
}

func NewAlpaca() *Alpaca {
	return &Alpaca{md: marketdata.NewClient(marketdata.ClientOpts{})}
}

func (a *Alpaca) Name() string { return "alpaca" }

func (a *Alpaca) Quote(ctx context.Context, symbol string) (Quote, error) {
	_ = ctx // the alpaca client carries its own request timeout

	symbol = strings.ToUpper(symbol)
	trade, err := a.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return Quote{}, fmt.Errorf("alpaca: %w", err)
	}
	if trade == nil || trade.Price == 0 {
		return Quote{}, fmt.Errorf("alpaca: no trade for %q", symbol)
	}
	return Quote{
		Symbol: symbol,
		Price:  trade.Price,
		Time:   time.Now().UTC(),
	}, nil
}

// Quotes fetches each symbol individually; alpaca's latest-trade endpoint
// has no useful batch form for this set size.
func (a *Alpaca) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		q, err := a.Quote(ctx, s)
		if err != nil {
			continue
		}
		out[q.Symbol] = q
	}
	return out, nil
}
