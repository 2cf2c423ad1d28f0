package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const binanceWSURL = "wss://stream.binance.com:9443/ws"

// BinanceStream pushes live crypto ticks into the oracle between refresher
// runs. It subscribes to the miniTicker stream for each symbol and invokes
// the callback per update. The connection is re-dialed with backoff until
// the context is cancelled.
type BinanceStream struct {
	url     string
	symbols []string
	onQuote func(Quote)
	logger  *zap.Logger
}

func NewBinanceStream(symbols []string, onQuote func(Quote), logger *zap.Logger) *BinanceStream {
	return &BinanceStream{
		url:     binanceWSURL,
		symbols: symbols,
		onQuote: onQuote,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled.
func (b *BinanceStream) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := b.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("binance stream dropped", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (b *BinanceStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	params := make([]string, 0, len(b.symbols))
	for _, s := range b.symbols {
		params = append(params, strings.ToLower(s)+"usdt@miniTicker")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().Unix(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		b.handle(raw)
	}
}

type binanceMiniTicker struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Open   string `json:"o"`
}

func (b *BinanceStream) handle(raw []byte) {
	var t binanceMiniTicker
	if err := json.Unmarshal(raw, &t); err != nil || t.Event != "24hrMiniTicker" {
		return
	}

	price, err := strconv.ParseFloat(t.Close, 64)
	if err != nil || price == 0 {
		return
	}
	open, _ := strconv.ParseFloat(t.Open, 64)

	change := 0.0
	if open > 0 {
		change = (price - open) / open * 100
	}

	symbol := strings.ToUpper(strings.TrimSuffix(t.Symbol, "USDT"))
	b.onQuote(Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		Time:      time.Now().UTC(),
	})
}
