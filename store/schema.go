package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	wallet_balance REAL NOT NULL,
	margin_used REAL NOT NULL DEFAULT 0,
	available_margin REAL NOT NULL,
	portfolio_value REAL NOT NULL,
	realized_pnl REAL NOT NULL DEFAULT 0,
	unrealized_pnl REAL NOT NULL DEFAULT 0,
	total_pnl REAL NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades INTEGER NOT NULL DEFAULT 0,
	win_rate REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_active DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	current_price REAL NOT NULL,
	price_change_24h REAL NOT NULL DEFAULT 0,
	max_leverage INTEGER NOT NULL DEFAULT 5,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL REFERENCES assets(symbol),
	quantity REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	leverage INTEGER NOT NULL,
	margin_used REAL NOT NULL,
	stop_loss_price REAL,
	take_profit_price REAL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	quantity REAL NOT NULL,
	leverage INTEGER NOT NULL,
	price REAL NOT NULL,
	total_value REAL NOT NULL,
	margin_cost REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	trigger_type TEXT NOT NULL DEFAULT '',
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, id);

CREATE TABLE IF NOT EXISTS snapshots (
	account_id TEXT NOT NULL REFERENCES accounts(id),
	portfolio_value REAL NOT NULL,
	wallet_balance REAL NOT NULL,
	total_pnl REAL NOT NULL,
	taken_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_account_time ON snapshots(account_id, taken_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	wallet_balance DOUBLE PRECISION NOT NULL,
	margin_used DOUBLE PRECISION NOT NULL DEFAULT 0,
	available_margin DOUBLE PRECISION NOT NULL,
	portfolio_value DOUBLE PRECISION NOT NULL,
	realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades INTEGER NOT NULL DEFAULT 0,
	win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	last_active TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	current_price DOUBLE PRECISION NOT NULL,
	price_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_leverage INTEGER NOT NULL DEFAULT 5,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL REFERENCES assets(symbol),
	quantity DOUBLE PRECISION NOT NULL,
	avg_entry_price DOUBLE PRECISION NOT NULL,
	leverage INTEGER NOT NULL,
	margin_used DOUBLE PRECISION NOT NULL,
	stop_loss_price DOUBLE PRECISION,
	take_profit_price DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	leverage INTEGER NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	total_value DOUBLE PRECISION NOT NULL,
	margin_cost DOUBLE PRECISION NOT NULL,
	realized_pnl DOUBLE PRECISION NOT NULL,
	trigger_type TEXT NOT NULL DEFAULT '',
	executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, id);

CREATE TABLE IF NOT EXISTS snapshots (
	account_id TEXT NOT NULL REFERENCES accounts(id),
	portfolio_value DOUBLE PRECISION NOT NULL,
	wallet_balance DOUBLE PRECISION NOT NULL,
	total_pnl DOUBLE PRECISION NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_account_time ON snapshots(account_id, taken_at);
`
