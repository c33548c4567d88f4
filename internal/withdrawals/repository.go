package withdrawals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starpoints/backend/internal/models"
)

var errAccountMissing = errors.New("account not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LockAccount takes the row lock that serializes every withdrawal-create
// against other ledger work on the same account. Call within a transaction.
func (r *Repository) LockAccount(ctx context.Context, tx pgx.Tx, accountID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM accounts WHERE id = $1 FOR UPDATE
	`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return errAccountMissing
	}
	return err
}

// HasPending reports whether the account already has an unresolved request.
func (r *Repository) HasPending(ctx context.Context, tx pgx.Tx, accountID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM withdrawals WHERE account_id = $1 AND status = $2)
	`, accountID, models.WithdrawalPending).Scan(&exists)
	return exists, err
}

// Insert persists a new pending request inside the caller's transaction.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, accountID, amount int64, details string) (*models.Withdrawal, error) {
	w := &models.Withdrawal{
		AccountID: accountID,
		Amount:    amount,
		Details:   details,
		Status:    models.WithdrawalPending,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO withdrawals (account_id, amount, details, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, accountID, amount, details, models.WithdrawalPending).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetForUpdate locks the request row so no two admins can resolve it
// concurrently. Returns nil if the request does not exist.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, amount, details, status, payout_ref, created_at, resolved_at
		FROM withdrawals WHERE id = $1 FOR UPDATE
	`, id).Scan(&w.ID, &w.AccountID, &w.Amount, &w.Details, &w.Status, &w.PayoutRef, &w.CreatedAt, &w.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, tx pgx.Tx, id int64, payoutRef uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawals SET status = $2, payout_ref = $3, resolved_at = now() WHERE id = $1
	`, id, models.WithdrawalCompleted, payoutRef)
	return err
}

func (r *Repository) MarkRejected(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawals SET status = $2, resolved_at = now() WHERE id = $1
	`, id, models.WithdrawalRejected)
	return err
}

// ListByStatus returns requests in the given status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount, details, status, payout_ref, created_at, resolved_at
		FROM withdrawals WHERE status = $1 ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Withdrawal
	for rows.Next() {
		var w models.Withdrawal
		if err := rows.Scan(&w.ID, &w.AccountID, &w.Amount, &w.Details, &w.Status, &w.PayoutRef, &w.CreatedAt, &w.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
