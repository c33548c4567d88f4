package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starpoints/backend/internal/flyer"
	"github.com/starpoints/backend/internal/models"
	"github.com/starpoints/backend/internal/rewards"
)

// TaskRewardIssuer is the part of the reward service the check endpoint
// needs. The task row is passed whole so reward and signature travel with
// the request instead of through any shared cache.
type TaskRewardIssuer interface {
	IssueTaskReward(ctx context.Context, accountID int64, task models.Task) (int64, error)
}

// Catalog is the task lookup surface the handler reads from.
type Catalog interface {
	List(ctx context.Context) ([]*models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.Task, error)
}

type Handler struct {
	catalog Catalog
	rewards TaskRewardIssuer
	log     *slog.Logger
}

func NewHandler(catalog Catalog, issuer TaskRewardIssuer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{catalog: catalog, rewards: issuer, log: log}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List(r.Context())
	if err != nil {
		h.log.Error("task list failed", "error", err)
		http.Error(w, "task list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

type CheckRequest struct {
	AccountID int64 `json:"account_id"`
}

type CheckResponse struct {
	Status  string `json:"status"` // credited | not_completed
	Balance int64  `json:"balance,omitempty"`
}

// Check verifies the task externally and credits the reward at most once.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || taskID <= 0 {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.AccountID <= 0 {
		http.Error(w, "account_id must be positive", http.StatusBadRequest)
		return
	}

	task, err := h.catalog.GetByID(r.Context(), taskID)
	if err != nil {
		h.log.Error("task lookup failed", "task_id", taskID, "error", err)
		http.Error(w, "task lookup failed", http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	balance, err := h.rewards.IssueTaskReward(r.Context(), req.AccountID, *task)
	if err != nil {
		switch {
		case errors.Is(err, rewards.ErrNotCompleted):
			writeJSON(w, http.StatusOK, CheckResponse{Status: "not_completed"})
		case errors.Is(err, rewards.ErrAlreadyClaimed):
			http.Error(w, "reward already credited", http.StatusConflict)
		case errors.Is(err, flyer.ErrVerifierUnavailable):
			http.Error(w, "verification temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("task check failed", "task_id", taskID, "account_id", req.AccountID, "error", err)
			http.Error(w, "task check failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Status: "credited", Balance: balance})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
