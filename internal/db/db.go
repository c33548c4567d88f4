package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Runner executes a function inside a single committed transaction. The
// transaction is rolled back if fn returns an error, so every operation
// either commits fully or has no effect.
type Runner struct {
	pool *pgxpool.Pool
}

func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

func (r *Runner) RunInTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// schema is executed at startup. The unique constraint on reward_claims is
// what makes claimFirst a single atomic check-and-insert.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id               BIGINT PRIMARY KEY,
	username         TEXT,
	first_name       TEXT,
	referrer_id      BIGINT,
	balance          BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	locked           BIGINT NOT NULL DEFAULT 0 CHECK (locked >= 0 AND locked <= balance),
	last_daily_claim DATE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	signature  TEXT NOT NULL UNIQUE,
	reward     BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reward_claims (
	account_id BIGINT NOT NULL,
	event_key  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (account_id, event_key)
);

CREATE TABLE IF NOT EXISTS withdrawals (
	id          BIGSERIAL PRIMARY KEY,
	account_id  BIGINT NOT NULL REFERENCES accounts(id),
	amount      BIGINT NOT NULL CHECK (amount > 0),
	details     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	payout_ref  UUID,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS withdrawals_pending_idx
	ON withdrawals (account_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS ledger_entries (
	id         BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL,
	amount     BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS ledger_entries_account_idx
	ON ledger_entries (account_id, id DESC);
`

// EnsureSchema creates the application tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
