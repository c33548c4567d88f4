package withdrawals

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starpoints/backend/internal/ledger"
	"github.com/starpoints/backend/internal/metrics"
	"github.com/starpoints/backend/internal/models"
	"github.com/starpoints/backend/internal/notify"
)

var (
	// ErrAlreadyPending rejects a second request while one is unresolved.
	ErrAlreadyPending = errors.New("a pending withdrawal already exists")
	// ErrAlreadyResolved rejects a stale admin decision on a terminal request.
	ErrAlreadyResolved = errors.New("withdrawal already resolved")
	// ErrNotFound means no request with that id exists.
	ErrNotFound = errors.New("withdrawal not found")
	// ErrBelowMinimum rejects requests under the configured payout minimum.
	ErrBelowMinimum = errors.New("amount below withdrawal minimum")
	// ErrInsufficientFunds mirrors the ledger sentinel.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)

// TxRunner runs fn inside one committed transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Store is the request persistence used by the workflow. All mutating
// methods share the workflow's transaction.
type Store interface {
	LockAccount(ctx context.Context, tx pgx.Tx, accountID int64) error
	HasPending(ctx context.Context, tx pgx.Tx, accountID int64) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, accountID, amount int64, details string) (*models.Withdrawal, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Withdrawal, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id int64, payoutRef uuid.UUID) error
	MarkRejected(ctx context.Context, tx pgx.Tx, id int64) error
	ListByStatus(ctx context.Context, status string) ([]*models.Withdrawal, error)
}

// Service drives the pending -> completed | rejected state machine on top of
// the ledger's reserve/settle/release primitives. Each transition shares a
// transaction with its ledger call, so a crash can never leave the ledger
// debited while the request still reads pending.
type Service struct {
	runner     TxRunner
	store      Store
	ledger     ledger.Service
	insertNoti notify.InsertTxFunc
	minUnits   int64
	log        *slog.Logger
}

func NewService(runner TxRunner, store Store, ledgerSvc ledger.Service, insertNoti notify.InsertTxFunc, minUnits int64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner:     runner,
		store:      store,
		ledger:     ledgerSvc,
		insertNoti: insertNoti,
		minUnits:   minUnits,
		log:        log,
	}
}

// Create reserves amount against the account and persists a pending request.
// The account row lock serializes the pending check and the reservation
// against concurrent requests for the same account.
func (s *Service) Create(ctx context.Context, accountID, amount int64, details string) (*models.Withdrawal, error) {
	if amount < s.minUnits {
		return nil, ErrBelowMinimum
	}

	var w *models.Withdrawal
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.LockAccount(ctx, tx, accountID); err != nil {
			if errors.Is(err, errAccountMissing) {
				return ErrInsufficientFunds
			}
			return err
		}
		pending, err := s.store.HasPending(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if pending {
			return ErrAlreadyPending
		}
		if err := s.ledger.Reserve(ctx, tx, accountID, amount); err != nil {
			return err
		}
		w, err = s.store.Insert(ctx, tx, accountID, amount, details)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventWithdrawalCreated, accountID, amount, ""))
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.InsufficientFunds.Inc()
		}
		return nil, err
	}
	metrics.WithdrawalsCreated.Inc()
	return w, nil
}

// Approve settles the reservation, appends the debit audit entry and marks
// the request completed, all in one transaction.
func (s *Service) Approve(ctx context.Context, requestID int64) (*models.Withdrawal, error) {
	var w *models.Withdrawal
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = s.loadPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.ledger.Settle(ctx, tx, w.AccountID, w.Amount); err != nil {
			return err
		}
		if err := s.ledger.AppendEntry(ctx, tx, w.AccountID, -w.Amount, models.EntryKindWithdrawSettle); err != nil {
			return err
		}
		ref := uuid.New()
		if err := s.store.MarkCompleted(ctx, tx, w.ID, ref); err != nil {
			return err
		}
		w.Status = models.WithdrawalCompleted
		w.PayoutRef = &ref
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventWithdrawalResolved, w.AccountID, w.Amount, models.WithdrawalCompleted))
	})
	if err != nil {
		return nil, err
	}
	metrics.WithdrawalsResolved.WithLabelValues(models.WithdrawalCompleted).Inc()
	return w, nil
}

// Reject releases the reservation back to available and marks the request
// rejected. The balance itself is untouched.
func (s *Service) Reject(ctx context.Context, requestID int64) (*models.Withdrawal, error) {
	var w *models.Withdrawal
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = s.loadPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.ledger.Release(ctx, tx, w.AccountID, w.Amount); err != nil {
			return err
		}
		if err := s.store.MarkRejected(ctx, tx, w.ID); err != nil {
			return err
		}
		w.Status = models.WithdrawalRejected
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventWithdrawalResolved, w.AccountID, w.Amount, models.WithdrawalRejected))
	})
	if err != nil {
		return nil, err
	}
	metrics.WithdrawalsResolved.WithLabelValues(models.WithdrawalRejected).Inc()
	return w, nil
}

// ListPending returns unresolved requests, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*models.Withdrawal, error) {
	return s.store.ListByStatus(ctx, models.WithdrawalPending)
}

func (s *Service) loadPending(ctx context.Context, tx pgx.Tx, requestID int64) (*models.Withdrawal, error) {
	w, err := s.store.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	if w.Status != models.WithdrawalPending {
		return nil, ErrAlreadyResolved
	}
	return w, nil
}

func (s *Service) enqueue(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) error {
	if s.insertNoti == nil {
		return nil
	}
	return s.insertNoti(ctx, tx, args)
}
