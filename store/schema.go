package store

const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	currency TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	initial_balance REAL NOT NULL,
	current_balance REAL NOT NULL,
	total_realized_pl REAL NOT NULL DEFAULT 0,
	archived INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (owner, name)
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	amount REAL NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	date TEXT NOT NULL,
	allocation_pct REAL,
	note TEXT NOT NULL DEFAULT '',
	deleted INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions(owner, deleted, date, created_at);

CREATE TABLE IF NOT EXISTS savings_balances (
	owner TEXT PRIMARY KEY,
	total REAL NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS savings_allocations (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	transaction_id TEXT,
	amount REAL NOT NULL,
	date TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_allocations_transaction ON savings_allocations(transaction_id) WHERE transaction_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_allocations_owner_date ON savings_allocations(owner, date, created_at);

CREATE TABLE IF NOT EXISTS savings_goals (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	title TEXT NOT NULL,
	target_amount REAL NOT NULL,
	target_date TEXT NOT NULL,
	current_amount REAL NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_goals_owner ON savings_goals(owner);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	date TEXT NOT NULL,
	realized_pl REAL,
	note TEXT NOT NULL DEFAULT '',
	deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(account_id, symbol, deleted, date, created_at);

CREATE TABLE IF NOT EXISTS holdings (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL,
	quantity REAL NOT NULL,
	average_cost REAL NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (account_id, symbol)
);
`
