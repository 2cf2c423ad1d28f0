package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the embedded backend. One writer at a time is fine here: the
// engine already serializes mutations per account, and sqlite serializes
// writers globally underneath.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLite) GetOrCreateAccount(ctx context.Context, id string, startingBalance float64) (Account, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, wallet_balance, available_margin, portfolio_value, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last_active = excluded.last_active`,
		id, startingBalance, startingBalance, startingBalance, now, now)
	if err != nil {
		return Account{}, err
	}
	return s.Account(ctx, id)
}

func (s *SQLite) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id))
}

func (s *SQLite) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
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

func (s *SQLite) Asset(ctx context.Context, symbol string) (Asset, error) {
	return scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetCols+` FROM assets WHERE symbol = ? AND is_active = 1`, symbol))
}

func (s *SQLite) Assets(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetCols+` FROM assets WHERE is_active = 1 ORDER BY asset_type, symbol`)
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

func (s *SQLite) SeedAssets(ctx context.Context, assets []Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range assets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (symbol, name, asset_type, current_price, price_change_24h, max_leverage, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol) DO NOTHING`,
			a.Symbol, a.Name, string(a.Type), a.CurrentPrice, a.PriceChange24h, a.MaxLeverage, a.Active, time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) UpdateAssetPrice(ctx context.Context, symbol string, price, change24h float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET current_price = ?, price_change_24h = ?, updated_at = ?
		WHERE symbol = ?`, price, change24h, time.Now().UTC(), symbol)
	return err
}

func (s *SQLite) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (s *SQLite) TriggerHoldings(ctx context.Context) ([]Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+holdingCols+` FROM holdings
		WHERE quantity > 0 AND (stop_loss_price IS NOT NULL OR take_profit_price IS NOT NULL)
		ORDER BY account_id, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (s *SQLite) Trades(ctx context.Context, accountID string, limit int) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeCols+` FROM trades
		WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
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

func (s *SQLite) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (account_id, portfolio_value, wallet_balance, total_pnl, taken_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.AccountID, snap.PortfolioValue, snap.WalletBalance, snap.TotalPnL, snap.TakenAt)
	return err
}

func (s *SQLite) Snapshots(ctx context.Context, accountID string, since time.Time) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, portfolio_value, wallet_balance, total_pnl, taken_at
		FROM snapshots WHERE account_id = ? AND taken_at >= ? ORDER BY taken_at`,
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

func (s *SQLite) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_value, total_pnl, total_trades, win_rate
		FROM accounts WHERE portfolio_value > 0
		ORDER BY portfolio_value DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.PortfolioValue, &e.TotalPnL, &e.TotalTrades, &e.WinRate); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// sqliteTx implements Tx over a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id))
}

func (t *sqliteTx) SaveAccount(ctx context.Context, a Account) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET
			wallet_balance = ?, margin_used = ?, available_margin = ?,
			portfolio_value = ?, realized_pnl = ?, unrealized_pnl = ?, total_pnl = ?,
			total_trades = ?, winning_trades = ?, losing_trades = ?, win_rate = ?,
			last_active = ?
		WHERE id = ?`,
		a.WalletBalance, a.MarginUsed, a.AvailableMargin,
		a.PortfolioValue, a.RealizedPnL, a.UnrealizedPnL, a.TotalPnL,
		a.TotalTrades, a.WinningTrades, a.LosingTrades, a.WinRate,
		time.Now().UTC(), a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return err
}

func (t *sqliteTx) Asset(ctx context.Context, symbol string) (Asset, error) {
	return scanAsset(t.tx.QueryRowContext(ctx,
		`SELECT `+assetCols+` FROM assets WHERE symbol = ? AND is_active = 1`, symbol))
}

func (t *sqliteTx) Holding(ctx context.Context, accountID, symbol string) (Holding, error) {
	return scanHolding(t.tx.QueryRowContext(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = ? AND symbol = ?`, accountID, symbol))
}

func (t *sqliteTx) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHoldings(rows)
}

func (t *sqliteTx) UpsertHolding(ctx context.Context, h Holding) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO holdings (account_id, symbol, quantity, avg_entry_price, leverage, margin_used, stop_loss_price, take_profit_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (t *sqliteTx) DeleteHolding(ctx context.Context, accountID, symbol string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM holdings WHERE account_id = ? AND symbol = ?`, accountID, symbol)
	return err
}

func (t *sqliteTx) InsertTrade(ctx context.Context, tr Trade) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (id, account_id, symbol, side, kind, quantity, leverage, price, total_value, margin_cost, realized_pnl, trigger_type, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.AccountID, tr.Symbol, tr.Side, tr.Kind, tr.Quantity, tr.Leverage,
		tr.Price, tr.TotalValue, tr.MarginCost, tr.RealizedPnL, tr.Trigger, tr.ExecutedAt)
	return err
}

// Row scanning shared by both backends.

type row interface {
	Scan(dest ...any) error
}

const accountCols = `id, wallet_balance, margin_used, available_margin, portfolio_value,
	realized_pnl, unrealized_pnl, total_pnl, total_trades, winning_trades, losing_trades,
	win_rate, created_at, last_active`

const assetCols = `symbol, name, asset_type, current_price, price_change_24h, max_leverage, is_active, updated_at`

const holdingCols = `account_id, symbol, quantity, avg_entry_price, leverage, margin_used,
	stop_loss_price, take_profit_price, updated_at`

const tradeCols = `id, account_id, symbol, side, kind, quantity, leverage, price,
	total_value, margin_cost, realized_pnl, trigger_type, executed_at`

func scanAccount(r row) (Account, error) {
	var a Account
	err := r.Scan(&a.ID, &a.WalletBalance, &a.MarginUsed, &a.AvailableMargin, &a.PortfolioValue,
		&a.RealizedPnL, &a.UnrealizedPnL, &a.TotalPnL, &a.TotalTrades, &a.WinningTrades,
		&a.LosingTrades, &a.WinRate, &a.CreatedAt, &a.LastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isPgNoRows(err) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanAsset(r row) (Asset, error) {
	var (
		a   Asset
		typ string
	)
	err := r.Scan(&a.Symbol, &a.Name, &typ, &a.CurrentPrice, &a.PriceChange24h,
		&a.MaxLeverage, &a.Active, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isPgNoRows(err) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, err
	}
	a.Type = AssetType(typ)
	return a, nil
}

func scanHolding(r row) (Holding, error) {
	var (
		h      Holding
		sl, tp sql.NullFloat64
	)
	err := r.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AvgEntryPrice, &h.Leverage,
		&h.MarginUsed, &sl, &tp, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isPgNoRows(err) {
			return Holding{}, ErrHoldingNotFound
		}
		return Holding{}, err
	}
	if sl.Valid {
		h.StopLoss = &sl.Float64
	}
	if tp.Valid {
		h.TakeProfit = &tp.Float64
	}
	return h, nil
}

func scanTrade(r row) (Trade, error) {
	var t Trade
	err := r.Scan(&t.ID, &t.AccountID, &t.Symbol, &t.Side, &t.Kind, &t.Quantity,
		&t.Leverage, &t.Price, &t.TotalValue, &t.MarginCost, &t.RealizedPnL,
		&t.Trigger, &t.ExecutedAt)
	return t, err
}

type rows interface {
	row
	Next() bool
	Err() error
}

func collectHoldings(r rows) ([]Holding, error) {
	var out []Holding
	for r.Next() {
		h, err := scanHolding(r)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, r.Err()
}
