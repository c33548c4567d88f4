package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Notification event names delivered to the chat gateway.
const (
	EventRewardIssued       = "reward_issued"
	EventWithdrawalCreated  = "withdrawal_created"
	EventWithdrawalResolved = "withdrawal_resolved"
)

// SendNotificationArgs is the river job payload. Jobs are inserted in the
// same transaction as the ledger change, so an intent is never enqueued for
// a change that rolled back.
type SendNotificationArgs struct {
	EventID   uuid.UUID `json:"event_id"`
	Event     string    `json:"event"`
	AccountID int64     `json:"account_id"`
	Amount    int64     `json:"amount"`
	Detail    string    `json:"detail,omitempty"`
}

func (SendNotificationArgs) Kind() string { return "send_notification" }

// InsertTxFunc enqueues a notification within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args SendNotificationArgs) error

// NewArgs builds a notification payload with a fresh event id.
func NewArgs(event string, accountID, amount int64, detail string) SendNotificationArgs {
	return SendNotificationArgs{
		EventID:   uuid.New(),
		Event:     event,
		AccountID: accountID,
		Amount:    amount,
		Detail:    detail,
	}
}

// SendNotificationWorker posts notification intents to the chat gateway's
// webhook. Delivery is best-effort: river retries transient failures, and a
// job that ultimately fails never touches the ledger.
type SendNotificationWorker struct {
	river.WorkerDefaults[SendNotificationArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewSendNotificationWorker(webhookURL string, log *slog.Logger) *SendNotificationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SendNotificationWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

func (w *SendNotificationWorker) Work(ctx context.Context, job *river.Job[SendNotificationArgs]) error {
	if w.webhookURL == "" {
		w.log.Debug("notification delivery disabled", "event", job.Args.Event)
		return nil
	}

	body, err := json.Marshal(job.Args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
