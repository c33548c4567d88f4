package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/starpoints/backend/internal/rewards"
)

// RewardIssuer is the part of the reward service registration and the daily
// endpoint need.
type RewardIssuer interface {
	IssueReferralBonus(ctx context.Context, referrerID, referredID int64) error
	ClaimDailyBonus(ctx context.Context, accountID int64, now time.Time) (int64, error)
}

type Handler struct {
	repo    *Repository
	rewards RewardIssuer
	log     *slog.Logger
}

func NewHandler(repo *Repository, issuer RewardIssuer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, rewards: issuer, log: log}
}

type RegisterRequest struct {
	ID         int64   `json:"id"`
	Username   *string `json:"username"`
	FirstName  *string `json:"first_name"`
	ReferrerID *int64  `json:"referrer_id"`
}

type RegisterResponse struct {
	ID      int64 `json:"id"`
	Created bool  `json:"created"`
}

// Register is the bot /start equivalent: creates the account on first
// contact and pays the referrer exactly once.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ID <= 0 {
		http.Error(w, "id must be positive", http.StatusBadRequest)
		return
	}
	referrer := req.ReferrerID
	if referrer != nil && (*referrer == req.ID || *referrer <= 0) {
		referrer = nil
	}

	created, err := h.repo.Register(r.Context(), req.ID, req.Username, req.FirstName, referrer)
	if err != nil {
		h.log.Error("account register failed", "account_id", req.ID, "error", err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	if created && referrer != nil {
		// The registry makes this idempotent; a duplicate here just means a
		// concurrent registration already paid it.
		if err := h.rewards.IssueReferralBonus(r.Context(), *referrer, req.ID); err != nil &&
			!errors.Is(err, rewards.ErrAlreadyClaimed) {
			h.log.Error("referral bonus failed", "referrer_id", *referrer, "account_id", req.ID, "error", err)
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RegisterResponse{ID: req.ID, Created: created})
}

type BalanceResponse struct {
	Balance   int64 `json:"balance"`
	Locked    int64 `json:"locked"`
	Available int64 `json:"available"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("balance lookup failed", "account_id", id, "error", err)
		http.Error(w, "balance lookup failed", http.StatusInternalServerError)
		return
	}
	if acc == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:   acc.Balance,
		Locked:    acc.Locked,
		Available: acc.Available(),
	})
}

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.repo.Statement(r.Context(), id, limit)
	if err != nil {
		h.log.Error("statement failed", "account_id", id, "error", err)
		http.Error(w, "statement failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type DailyResponse struct {
	Balance int64 `json:"balance"`
}

func (h *Handler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	balance, err := h.rewards.ClaimDailyBonus(r.Context(), id, time.Now())
	if err != nil {
		if errors.Is(err, rewards.ErrAlreadyClaimed) {
			http.Error(w, "daily bonus already claimed", http.StatusConflict)
			return
		}
		h.log.Error("daily bonus failed", "account_id", id, "error", err)
		http.Error(w, "daily bonus failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, DailyResponse{Balance: balance})
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
