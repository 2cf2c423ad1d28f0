// Package events fans executed trades out to live consumers: a websocket
// hub for connected UIs and an optional Kafka topic for downstream
// pipelines. Publishing is best-effort; a lost event never fails a trade.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TradeEvent is the wire form of one executed trade.
type TradeEvent struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	Leverage       int       `json:"leverage"`
	Price          float64   `json:"price"`
	TotalValue     float64   `json:"total_value"`
	RealizedPnL    float64   `json:"realized_pnl"`
	Trigger        string    `json:"trigger,omitempty"`
	PortfolioValue float64   `json:"portfolio_value"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// NewEventID returns a fresh event id.
func NewEventID() string { return uuid.NewString() }

type Publisher interface {
	PublishTrade(ctx context.Context, ev TradeEvent) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishTrade(context.Context, TradeEvent) error { return nil }
func (Nop) Close() error                                   { return nil }

// Multi publishes to every child; the first error wins but all children are
// attempted.
type Multi []Publisher

func (m Multi) PublishTrade(ctx context.Context, ev TradeEvent) error {
	var first error
	for _, p := range m {
		if err := p.PublishTrade(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
