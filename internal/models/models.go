package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds. Positive amounts are credits, negative are debits.
const (
	EntryKindTaskReward     = "task_reward"
	EntryKindReferral       = "referral"
	EntryKindDailyBonus     = "daily_bonus"
	EntryKindWithdrawSettle = "withdraw_settle"
)

// Withdrawal statuses. pending is the only non-terminal state.
const (
	WithdrawalPending   = "pending"
	WithdrawalCompleted = "completed"
	WithdrawalRejected  = "rejected"
)

// Account is a chat user's points account. Balance and Locked are integer
// reward units (a quarter of a display star). ReferrerID is set once at
// registration and never overwritten.
type Account struct {
	ID             int64      `json:"id"`
	Username       *string    `json:"username,omitempty"`
	FirstName      *string    `json:"first_name,omitempty"`
	ReferrerID     *int64     `json:"referrer_id,omitempty"`
	Balance        int64      `json:"balance"`
	Locked         int64      `json:"locked"`
	LastDailyClaim *time.Time `json:"last_daily_claim,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Available is the only amount a new reservation may draw against.
func (a *Account) Available() int64 { return a.Balance - a.Locked }

// Withdrawal is a payout request. It reserves Amount against the account's
// locked balance while pending; completed and rejected are terminal.
type Withdrawal struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	Amount     int64      `json:"amount"`
	Details    string     `json:"details"`
	Status     string     `json:"status"`
	PayoutRef  *uuid.UUID `json:"payout_ref,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// LedgerEntry is an append-only audit record of a balance change. It is never
// the source of truth for the current balance.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a catalog entry for an externally verified task. Signature is the
// identifier the verification provider knows the task by; Reward is the
// credit paid on first verified completion.
type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Signature string    `json:"signature"`
	Reward    int64     `json:"reward"`
	CreatedAt time.Time `json:"created_at"`
}
