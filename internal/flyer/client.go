package flyer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrVerifierUnavailable is returned for transport failures, timeouts and
// non-2xx responses. Callers treat it as "not completed, retry later" and
// must not consume an idempotency slot.
var ErrVerifierUnavailable = errors.New("task verifier unavailable")

const requestTimeout = 10 * time.Second

// Client talks to the Flyer task-verification gateway.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(url, apiKey string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

type checkRequest struct {
	TelegramID    int64  `json:"telegram_id"`
	TaskSignature string `json:"task_signature"`
}

// CheckCompletion asks the gateway whether the user finished the task.
// Any failure to get a definitive answer returns ErrVerifierUnavailable.
func (c *Client) CheckCompletion(ctx context.Context, accountID int64, signature string) (bool, error) {
	body, err := json.Marshal(checkRequest{TelegramID: accountID, TaskSignature: signature})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("verifier request failed", "signature", signature, "error", err)
		return false, ErrVerifierUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("verifier returned non-2xx", "signature", signature, "status", resp.StatusCode)
		return false, fmt.Errorf("%w: status %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, fmt.Errorf("%w: invalid JSON", ErrVerifierUnavailable)
	}
	return parseCompletion(raw) == statusDone, nil
}

// completionStatus is the tri-state result of normalizing a verifier
// response. Unknown shapes are treated as not done.
type completionStatus int

const (
	statusUnknown completionStatus = iota
	statusDone
	statusNotDone
)

// parseCompletion normalizes the response shapes seen across provider
// versions: a bare boolean, {"completed": bool}, {"status": "<word>"}, or
// the same fields nested under "result".
func parseCompletion(raw json.RawMessage) completionStatus {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return statusDone
		}
		return statusNotDone
	}

	var payload struct {
		Completed *bool           `json:"completed"`
		Done      *bool           `json:"done"`
		Status    string          `json:"status"`
		Result    json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return statusUnknown
	}

	for _, flag := range []*bool{payload.Completed, payload.Done} {
		if flag != nil {
			if *flag {
				return statusDone
			}
			return statusNotDone
		}
	}

	switch strings.ToLower(payload.Status) {
	case "done", "complete", "completed", "ok":
		return statusDone
	case "pending", "incomplete", "not_completed", "failed":
		return statusNotDone
	}

	if len(payload.Result) > 0 {
		return parseCompletion(payload.Result)
	}
	return statusUnknown
}
