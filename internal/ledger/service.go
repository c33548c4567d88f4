package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Service exposes the four atomic account operations plus the audit append.
// All methods run inside the caller's transaction: composite operations
// (reserve + request insert, settle + status write) must share one commit
// boundary, so the transaction is owned one level up.
type Service interface {
	Credit(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) (int64, error)
	Reserve(ctx context.Context, tx pgx.Tx, accountID, amount int64) error
	Settle(ctx context.Context, tx pgx.Tx, accountID, amount int64) error
	Release(ctx context.Context, tx pgx.Tx, accountID, amount int64) error
	AppendEntry(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) error
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Credit(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) (int64, error) {
	return s.repo.Credit(ctx, tx, accountID, amount, kind)
}

func (s *service) Reserve(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	return s.repo.Reserve(ctx, tx, accountID, amount)
}

func (s *service) Settle(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	return s.repo.Settle(ctx, tx, accountID, amount)
}

func (s *service) Release(ctx context.Context, tx pgx.Tx, accountID, amount int64) error {
	return s.repo.Release(ctx, tx, accountID, amount)
}

func (s *service) AppendEntry(ctx context.Context, tx pgx.Tx, accountID, amount int64, kind string) error {
	return s.repo.AppendEntry(ctx, tx, accountID, amount, kind)
}

// ErrInsufficientFunds is returned by Reserve when available balance is too low.
var ErrInsufficientFunds = errInsufficientFunds

// ErrInvariant is returned by Settle/Release when the amount exceeds the
// locked balance. This is a programming error, not a user-facing outcome.
var ErrInvariant = errInvariant
