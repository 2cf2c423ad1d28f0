package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const coingeckoURL = "https://api.coingecko.com/api/v3"

// coingeckoIDs maps ticker symbols to CoinGecko coin ids.
var coingeckoIDs = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana",
	"AVAX": "avalanche-2", "LINK": "chainlink", "XRP": "ripple",
	"DOGE": "dogecoin", "ADA": "cardano",
}

// CoinGecko fetches crypto spot prices from the CoinGecko simple-price API.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	ids        map[string]string
}

// NewCoinGecko returns a client with the given per-request timeout.
func NewCoinGecko(timeout time.Duration) *CoinGecko {
	return &CoinGecko{
		baseURL:    coingeckoURL,
		httpClient: &http.Client{Timeout: timeout},
		ids:        coingeckoIDs,
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Quote(ctx context.Context, symbol string) (Quote, error) {
	quotes, err := c.Quotes(ctx, []string{symbol})
	if err != nil {
		return Quote{}, err
	}
	q, ok := quotes[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: no quote for %q", symbol)
	}
	return q, nil
}

// Quotes fetches all requested symbols in one round trip. Symbols without a
// known CoinGecko id are skipped, not errored.
func (c *CoinGecko) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	idToSymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(s)
		id, ok := c.ids[s]
		if !ok {
			continue
		}
		idToSymbol[id] = s
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}

	v := url.Values{}
	v.Set("ids", strings.Join(ids, ","))
	v.Set("vs_currencies", "usd")
	v.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/simple/price?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}

	var body map[string]struct {
		USD       float64 `json:"usd"`
		USDChange float64 `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]Quote, len(body))
	for id, entry := range body {
		sym, ok := idToSymbol[id]
		if !ok || entry.USD == 0 {
			continue
		}
		out[sym] = Quote{
			Symbol:    sym,
			Price:     entry.USD,
			Change24h: entry.USDChange,
			Time:      now,
		}
	}
	return out, nil
}
