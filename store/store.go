package store

import (
	"context"
	"errors"
	"time"
)

// Side of a trade.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order kinds.
const (
	KindMarket = "market"
	KindLimit  = "limit"
)

// Trigger kinds recorded on forced closes.
const (
	TriggerStopLoss   = "stop_loss"
	TriggerTakeProfit = "take_profit"
)

// AssetType distinguishes pricing feeds, not engine behavior.
type AssetType string

const (
	AssetCrypto AssetType = "crypto"
	AssetEquity AssetType = "equity"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrHoldingNotFound = errors.New("holding not found")
)

// Account is a trader's virtual wallet plus derived stats. The engine is the
// sole writer; derived fields are recomputed after every mutation.
type Account struct {
	ID              string
	WalletBalance   float64
	MarginUsed      float64
	AvailableMargin float64
	PortfolioValue  float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalPnL        float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	CreatedAt       time.Time
	LastActive      time.Time
}

// Asset is a tradeable symbol. CurrentPrice is refreshed by the price
// refresher loop; everything else is read-mostly catalog data.
type Asset struct {
	Symbol         string
	Name           string
	Type           AssetType
	CurrentPrice   float64
	PriceChange24h float64
	MaxLeverage    int
	Active         bool
	UpdatedAt      time.Time
}

// Holding is one account's open position in one asset. Quantity is always
// positive; a holding that reaches zero quantity is deleted, not retained.
type Holding struct {
	AccountID     string
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	Leverage      int
	MarginUsed    float64
	StopLoss      *float64
	TakeProfit    *float64
	UpdatedAt     time.Time
}

// Trade is an immutable execution record.
type Trade struct {
	ID          string
	AccountID   string
	Symbol      string
	Side        string
	Kind        string
	Quantity    float64
	Leverage    int
	Price       float64
	TotalValue  float64
	MarginCost  float64
	RealizedPnL float64
	Trigger     string // empty for user-submitted trades
	ExecutedAt  time.Time
}

// Snapshot is one point on an account's portfolio-value time series.
type Snapshot struct {
	AccountID      string
	PortfolioValue float64
	WalletBalance  float64
	TotalPnL       float64
	TakenAt        time.Time
}

// LeaderboardEntry ranks accounts by portfolio value.
type LeaderboardEntry struct {
	AccountID      string
	PortfolioValue float64
	TotalPnL       float64
	TotalTrades    int
	WinRate        float64
	Rank           int
}

// Tx is the unit of atomicity for a trade. Everything the executor touches
// between Begin and Commit either all lands or none of it does.
type Tx interface {
	Account(ctx context.Context, id string) (Account, error)
	SaveAccount(ctx context.Context, a Account) error
	Asset(ctx context.Context, symbol string) (Asset, error)
	Holding(ctx context.Context, accountID, symbol string) (Holding, error)
	Holdings(ctx context.Context, accountID string) ([]Holding, error)
	UpsertHolding(ctx context.Context, h Holding) error
	DeleteHolding(ctx context.Context, accountID, symbol string) error
	InsertTrade(ctx context.Context, t Trade) error
	Commit() error
	Rollback() error
}

// Store holds all engine state. Two backends exist: sqlite for embedded and
// demo use, postgres for shared deployments.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetOrCreateAccount(ctx context.Context, id string, startingBalance float64) (Account, error)
	Account(ctx context.Context, id string) (Account, error)
	AccountIDs(ctx context.Context) ([]string, error)

	Asset(ctx context.Context, symbol string) (Asset, error)
	Assets(ctx context.Context) ([]Asset, error)
	SeedAssets(ctx context.Context, assets []Asset) error
	UpdateAssetPrice(ctx context.Context, symbol string, price, change24h float64) error

	Holdings(ctx context.Context, accountID string) ([]Holding, error)
	TriggerHoldings(ctx context.Context) ([]Holding, error)

	Trades(ctx context.Context, accountID string, limit int) ([]Trade, error)

	InsertSnapshot(ctx context.Context, s Snapshot) error
	Snapshots(ctx context.Context, accountID string, since time.Time) ([]Snapshot, error)

	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	Close() error
}
