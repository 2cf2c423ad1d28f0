// Package feed talks to the external price sources. Every fetch is bounded
// by the caller's context plus a client timeout; failures are returned, not
// retried, because the oracle layers its own fallback on top.
package feed

import (
	"context"
	"time"
)

// Quote is one spot observation for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	Change24h float64
	Time      time.Time
}

// Source provides spot quotes for symbols it knows about.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// BatchSource is implemented by sources that can fetch many symbols in one
// round trip. The price refresher prefers it when available.
type BatchSource interface {
	Source
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}
