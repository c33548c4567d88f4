package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type TokenRequest struct {
	ServiceKey string `json:"service_key"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ServiceKey == "" {
		http.Error(w, "missing service_key", http.StatusBadRequest)
		return
	}
	token, err := h.svc.IssueToken(r.Context(), req.ServiceKey)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			http.Error(w, "invalid service key", http.StatusUnauthorized)
			return
		}
		h.log.Error("token issue failed", "error", err)
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{Token: token})
}
