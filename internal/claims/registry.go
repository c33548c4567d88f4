package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAlreadyClaimed is returned when the (account, event) pair has already
// paid out.
var ErrAlreadyClaimed = errors.New("reward already claimed")

// Registry guarantees at-most-once crediting per reward event. The insert is
// the check: the unique constraint on (account_id, event_key) turns a
// duplicate claim into a 23505, which is the AlreadyClaimed signal. There is
// deliberately no separate existence query — check-then-insert would race.
type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// ClaimFirst records the event for the account inside the caller's
// transaction. Returns ErrAlreadyClaimed if a record already exists.
func (r *Registry) ClaimFirst(ctx context.Context, tx pgx.Tx, accountID int64, eventKey string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reward_claims (account_id, event_key) VALUES ($1, $2)
	`, accountID, eventKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

// TaskEvent keys a reward on the task's verification signature.
func TaskEvent(signature string) string {
	return "task:" + signature
}

// ReferralEvent keys the referrer's bonus on the referred account, so one
// referrer can earn many bonuses but never twice for the same signup.
func ReferralEvent(referredID int64) string {
	return fmt.Sprintf("referral:%d", referredID)
}

// DailyEvent keys the daily bonus on the UTC calendar date.
func DailyEvent(t time.Time) string {
	return "daily:" + t.UTC().Format("2006-01-02")
}
