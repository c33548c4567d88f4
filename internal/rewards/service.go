package rewards

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/starpoints/backend/internal/claims"
	"github.com/starpoints/backend/internal/ledger"
	"github.com/starpoints/backend/internal/metrics"
	"github.com/starpoints/backend/internal/models"
	"github.com/starpoints/backend/internal/notify"
)

// ErrNotCompleted is returned when the verifier definitively reports the
// task as not done. The user may retry; no claim slot is consumed.
var ErrNotCompleted = errors.New("task not completed")

// ErrAlreadyClaimed mirrors the registry sentinel so callers don't need to
// import claims.
var ErrAlreadyClaimed = claims.ErrAlreadyClaimed

// TxRunner runs fn inside one committed transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Verifier is the external task-verification gateway.
type Verifier interface {
	CheckCompletion(ctx context.Context, accountID int64, signature string) (bool, error)
}

// ClaimRegistry is the at-most-once event registry.
type ClaimRegistry interface {
	ClaimFirst(ctx context.Context, tx pgx.Tx, accountID int64, eventKey string) error
}

// DailyClaimStore reads and writes the denormalized last-claim date used as
// a fast path before touching the registry.
type DailyClaimStore interface {
	GetLastDailyClaim(ctx context.Context, accountID int64) (*time.Time, error)
	SetLastDailyClaim(ctx context.Context, tx pgx.Tx, accountID int64, day time.Time) error
}

// Amounts are the configured reward sizes in quarter-star units. Task is the
// fallback when a catalog entry carries no reward of its own.
type Amounts struct {
	Task     int64
	Referral int64
	Daily    int64
}

// Service orchestrates "verify externally, then credit once" for the three
// reward paths. Each credit shares a transaction with its idempotency claim
// and audit entry, so a crash can never burn a claim slot without paying.
type Service struct {
	runner     TxRunner
	ledger     ledger.Service
	registry   ClaimRegistry
	verifier   Verifier
	daily      DailyClaimStore
	insertNoti notify.InsertTxFunc
	amounts    Amounts
	log        *slog.Logger
}

func NewService(
	runner TxRunner,
	ledgerSvc ledger.Service,
	registry ClaimRegistry,
	verifier Verifier,
	daily DailyClaimStore,
	insertNoti notify.InsertTxFunc,
	amounts Amounts,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner:     runner,
		ledger:     ledgerSvc,
		registry:   registry,
		verifier:   verifier,
		daily:      daily,
		insertNoti: insertNoti,
		amounts:    amounts,
		log:        log,
	}
}

// IssueTaskReward verifies the task with the external gateway and credits
// the account at most once per task signature. Verification happens before
// the claim so a negative or failed check never consumes the slot.
// Returns the new balance on success.
func (s *Service) IssueTaskReward(ctx context.Context, accountID int64, task models.Task) (int64, error) {
	done, err := s.verifier.CheckCompletion(ctx, accountID, task.Signature)
	if err != nil {
		metrics.VerifierErrors.Inc()
		return 0, err
	}
	if !done {
		return 0, ErrNotCompleted
	}

	amount := task.Reward
	if amount <= 0 {
		amount = s.amounts.Task
	}

	var newBalance int64
	err = s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.registry.ClaimFirst(ctx, tx, accountID, claims.TaskEvent(task.Signature)); err != nil {
			return err
		}
		newBalance, err = s.ledger.Credit(ctx, tx, accountID, amount, models.EntryKindTaskReward)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventRewardIssued, accountID, amount, task.Signature))
	})
	if err != nil {
		if errors.Is(err, claims.ErrAlreadyClaimed) {
			metrics.DuplicateClaims.Inc()
		}
		return 0, err
	}
	metrics.RewardsIssued.WithLabelValues(models.EntryKindTaskReward).Inc()
	return newBalance, nil
}

// IssueReferralBonus credits the referrer once per referred account, no
// matter how many times the referred account replays its start flow.
func (s *Service) IssueReferralBonus(ctx context.Context, referrerID, referredID int64) error {
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.registry.ClaimFirst(ctx, tx, referrerID, claims.ReferralEvent(referredID)); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(ctx, tx, referrerID, s.amounts.Referral, models.EntryKindReferral); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventRewardIssued, referrerID, s.amounts.Referral, ""))
	})
	if err != nil {
		if errors.Is(err, claims.ErrAlreadyClaimed) {
			metrics.DuplicateClaims.Inc()
		}
		return err
	}
	metrics.RewardsIssued.WithLabelValues(models.EntryKindReferral).Inc()
	return nil
}

// ClaimDailyBonus credits the once-per-UTC-day bonus. The calendar date in
// the event key is what enforces the limit; last_daily_claim is only a fast
// path that skips the transaction on an obvious repeat.
func (s *Service) ClaimDailyBonus(ctx context.Context, accountID int64, now time.Time) (int64, error) {
	day := now.UTC().Truncate(24 * time.Hour)

	if last, err := s.daily.GetLastDailyClaim(ctx, accountID); err == nil && last != nil {
		if sameDay(*last, day) {
			metrics.DuplicateClaims.Inc()
			return 0, claims.ErrAlreadyClaimed
		}
	}

	var newBalance int64
	err := s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.registry.ClaimFirst(ctx, tx, accountID, claims.DailyEvent(now)); err != nil {
			return err
		}
		var err error
		newBalance, err = s.ledger.Credit(ctx, tx, accountID, s.amounts.Daily, models.EntryKindDailyBonus)
		if err != nil {
			return err
		}
		if err := s.daily.SetLastDailyClaim(ctx, tx, accountID, day); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, notify.NewArgs(notify.EventRewardIssued, accountID, s.amounts.Daily, ""))
	})
	if err != nil {
		if errors.Is(err, claims.ErrAlreadyClaimed) {
			metrics.DuplicateClaims.Inc()
		}
		return 0, err
	}
	metrics.RewardsIssued.WithLabelValues(models.EntryKindDailyBonus).Inc()
	return newBalance, nil
}

func (s *Service) enqueue(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) error {
	if s.insertNoti == nil {
		return nil
	}
	return s.insertNoti(ctx, tx, args)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
