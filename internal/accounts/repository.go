package accounts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starpoints/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Register creates the account if it does not exist. The referrer is only
// written on the initial insert, so it can never be overwritten by a
// replayed start flow. Reports whether a new row was created.
func (r *Repository) Register(ctx context.Context, id int64, username, firstName *string, referrerID *int64) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, first_name, referrer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, id, username, firstName, referrerID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// GetByID returns the account or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, first_name, referrer_id, balance, locked, last_daily_claim, created_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Username, &a.FirstName, &a.ReferrerID, &a.Balance, &a.Locked, &a.LastDailyClaim, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetLastDailyClaim returns the denormalized last-claim date, nil if never
// claimed or the account does not exist.
func (r *Repository) GetLastDailyClaim(ctx context.Context, accountID int64) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT last_daily_claim FROM accounts WHERE id = $1
	`, accountID).Scan(&last)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}

// SetLastDailyClaim stamps the claim date inside the caller's transaction.
func (r *Repository) SetLastDailyClaim(ctx context.Context, tx pgx.Tx, accountID int64, day time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET last_daily_claim = $2 WHERE id = $1
	`, accountID, day)
	return err
}

// Statement returns the account's audit entries, newest first.
func (r *Repository) Statement(ctx context.Context, accountID int64, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount, kind, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY id DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
