package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the shared backend. Unlike sqlite there can be many engine
// processes against one database, so account rows are locked FOR UPDATE
// inside the trade transaction in addition to the in-process mutex.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func isPgNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) GetOrCreateAccount(ctx context.Context, id string, startingBalance float64) (Account, error) {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, wallet_balance, available_margin, portfolio_value, created_at, last_active)
		VALUES ($1, $2, $2, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET last_active = excluded.last_active`,
		id, startingBalance, now)
	if err != nil {
		return Account{}, err
	}
	return p.Account(ctx, id)
}

func (p *Postgres) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
}

func (p *Postgres) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) Asset(ctx context.Context, symbol string) (Asset, error) {
	return scanAsset(p.pool.QueryRow(ctx,
		`SELECT `+assetCols+` FROM assets WHERE symbol = $1 AND is_active`, symbol))
}

func (p *Postgres) Assets(ctx context.Context) ([]Asset, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+assetCols+` FROM assets WHERE is_active ORDER BY asset_type, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) SeedAssets(ctx context.Context, assets []Asset) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, a := range assets {
		_, err := tx.Exec(ctx, `
			INSERT INTO assets (symbol, name, asset_type, current_price, price_change_24h, max_leverage, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol) DO NOTHING`,
			a.Symbol, a.Name, string(a.Type), a.CurrentPrice, a.PriceChange24h, a.MaxLeverage, a.Active, time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) UpdateAssetPrice(ctx context.Context, symbol string, price, change24h float64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET current_price = $1, price_change_24h = $2, updated_at = $3
		WHERE symbol = $4`, price, change24h, time.Now().UTC(), symbol)
	return err
}

func (p *Postgres) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (p *Postgres) TriggerHoldings(ctx context.Context) ([]Holding, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+holdingCols+` FROM holdings
		WHERE quantity > 0 AND (stop_loss_price IS NOT NULL OR take_profit_price IS NOT NULL)
		ORDER BY account_id, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (p *Postgres) Trades(ctx context.Context, accountID string, limit int) ([]Trade, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+tradeCols+` FROM trades
		WHERE account_id = $1 ORDER BY id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO snapshots (account_id, portfolio_value, wallet_balance, total_pnl, taken_at)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.AccountID, snap.PortfolioValue, snap.WalletBalance, snap.TotalPnL, snap.TakenAt)
	return err
}

func (p *Postgres) Snapshots(ctx context.Context, accountID string, since time.Time) ([]Snapshot, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT account_id, portfolio_value, wallet_balance, total_pnl, taken_at
		FROM snapshots WHERE account_id = $1 AND taken_at >= $2 ORDER BY taken_at`,
		accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.AccountID, &snap.PortfolioValue, &snap.WalletBalance, &snap.TotalPnL, &snap.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, portfolio_value, total_pnl, total_trades, win_rate,
			RANK() OVER (ORDER BY portfolio_value DESC) AS rank
		FROM accounts WHERE portfolio_value > 0
		ORDER BY portfolio_value DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.PortfolioValue, &e.TotalPnL, &e.TotalTrades, &e.WinRate, &e.Rank); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit() error   { return t.tx.Commit(context.Background()) }
func (t *pgTx) Rollback() error { return t.tx.Rollback(context.Background()) }

// Account reads the row FOR UPDATE so concurrent engine processes serialize
// on the account even without sharing the in-process lock.
func (t *pgTx) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SaveAccount(ctx context.Context, a Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET
			wallet_balance = $1, margin_used = $2, available_margin = $3,
			portfolio_value = $4, realized_pnl = $5, unrealized_pnl = $6, total_pnl = $7,
			total_trades = $8, winning_trades = $9, losing_trades = $10, win_rate = $11,
			last_active = $12
		WHERE id = $13`,
		a.WalletBalance, a.MarginUsed, a.AvailableMargin,
		a.PortfolioValue, a.RealizedPnL, a.UnrealizedPnL, a.TotalPnL,
		a.TotalTrades, a.WinningTrades, a.LosingTrades, a.WinRate,
		time.Now().UTC(), a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) Asset(ctx context.Context, symbol string) (Asset, error) {
	return scanAsset(t.tx.QueryRow(ctx,
		`SELECT `+assetCols+` FROM assets WHERE symbol = $1 AND is_active`, symbol))
}

func (t *pgTx) Holding(ctx context.Context, accountID, symbol string) (Holding, error) {
	return scanHolding(t.tx.QueryRow(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = $1 AND symbol = $2`, accountID, symbol))
}

func (t *pgTx) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (t *pgTx) UpsertHolding(ctx context.Context, h Holding) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO holdings (account_id, symbol, quantity, avg_entry_price, leverage, margin_used, stop_loss_price, take_profit_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			leverage = excluded.leverage,
			margin_used = excluded.margin_used,
			stop_loss_price = excluded.stop_loss_price,
			take_profit_price = excluded.take_profit_price,
			updated_at = excluded.updated_at`,
		h.AccountID, h.Symbol, h.Quantity, h.AvgEntryPrice, h.Leverage, h.MarginUsed,
		h.StopLoss, h.TakeProfit, time.Now().UTC())
	return err
}

func (t *pgTx) DeleteHolding(ctx context.Context, accountID, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`, accountID, symbol)
	return err
}

func (t *pgTx) InsertTrade(ctx context.Context, tr Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (id, account_id, symbol, side, kind, quantity, leverage, price, total_value, margin_cost, realized_pnl, trigger_type, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tr.ID, tr.AccountID, tr.Symbol, tr.Side, tr.Kind, tr.Quantity, tr.Leverage,
		tr.Price, tr.TotalValue, tr.MarginCost, tr.RealizedPnL, tr.Trigger, tr.ExecutedAt)
	return err
}
