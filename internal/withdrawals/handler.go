package withdrawals

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starpoints/backend/internal/models"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type CreateRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    int64  `json:"amount"`
	Details   string `json:"details"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.AccountID <= 0 || req.Amount <= 0 {
		http.Error(w, "account_id and amount must be positive", http.StatusBadRequest)
		return
	}
	wd, err := h.svc.Create(r.Context(), req.AccountID, req.Amount, req.Details)
	if err != nil {
		switch {
		case errors.Is(err, ErrBelowMinimum):
			http.Error(w, "amount below withdrawal minimum", http.StatusBadRequest)
		case errors.Is(err, ErrAlreadyPending):
			http.Error(w, "a pending withdrawal already exists", http.StatusConflict)
		case errors.Is(err, ErrInsufficientFunds):
			http.Error(w, "insufficient funds", http.StatusPaymentRequired)
		default:
			h.log.Error("withdrawal create failed", "account_id", req.AccountID, "error", err)
			http.Error(w, "withdrawal create failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != models.WithdrawalPending {
		http.Error(w, "only status=pending is supported", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListPending(r.Context())
	if err != nil {
		h.log.Error("withdrawal list failed", "error", err)
		http.Error(w, "withdrawal list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": list})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.Approve)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.svc.Reject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*models.Withdrawal, error)) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid withdrawal id", http.StatusBadRequest)
		return
	}
	wd, err := fn(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "withdrawal not found", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyResolved):
			http.Error(w, "withdrawal already resolved", http.StatusConflict)
		default:
			h.log.Error("withdrawal resolve failed", "withdrawal_id", id, "error", err)
			http.Error(w, "withdrawal resolve failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
