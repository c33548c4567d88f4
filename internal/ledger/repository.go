package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	errInsufficientFunds = errors.New("insufficient funds")
	errInvariant         = errors.New("ledger invariant violated: amount exceeds locked balance")
)

// Repository performs the atomic read-check-write cycles on account rows.
// Every method runs inside the caller's transaction; the conditional UPDATEs
// make the check and the write a single statement, so two concurrent
// reservations can never both pass a stale availability check.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Credit increases the account balance by amount, creating the account with
// zero balances if it does not exist yet, and appends the audit entry.
// Returns the new balance.
func (r *Repository) Credit(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (id, balance, locked) VALUES ($1, $2, 0)
		ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
		RETURNING balance
	`, accountID, amount).Scan(&balance)
	if err != nil {
		return 0, err
	}
	if err := r.AppendEntry(ctx, tx, accountID, amount, kind); err != nil {
		return 0, err
	}
	return balance, nil
}

// Reserve moves amount from available to locked if available >= amount.
func (r *Repository) Reserve(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET locked = locked + $1
		WHERE id = $2 AND balance - locked >= $1
	`, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errInsufficientFunds
	}
	return nil
}

// Settle converts a previous reservation into a permanent debit.
func (r *Repository) Settle(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $1, locked = locked - $1
		WHERE id = $2 AND locked >= $1
	`, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errInvariant
	}
	return nil
}

// Release cancels a reservation, restoring amount to available.
func (r *Repository) Release(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET locked = locked - $1
		WHERE id = $2 AND locked >= $1
	`, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errInvariant
	}
	return nil
}

// AppendEntry writes one audit record inside the caller's transaction.
func (r *Repository) AppendEntry(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (account_id, amount, kind) VALUES ($1, $2, $3)
	`, accountID, amount, kind)
	return err
}
