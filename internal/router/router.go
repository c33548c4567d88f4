package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starpoints/backend/internal/accounts"
	"github.com/starpoints/backend/internal/auth"
	"github.com/starpoints/backend/internal/middleware"
	"github.com/starpoints/backend/internal/tasks"
	"github.com/starpoints/backend/internal/withdrawals"
)

// New builds the route table. Every /api/v1 route except token issuing
// requires the gateway JWT; withdrawal resolution additionally requires an
// admin actor.
func New(
	authHandler *auth.Handler,
	accountsHandler *accounts.Handler,
	tasksHandler *tasks.Handler,
	withdrawalsHandler *withdrawals.Handler,
	authSvc auth.Service,
	adminIDs map[int64]bool,
) http.Handler {
	mux := http.NewServeMux()

	requireToken := middleware.RequireToken(authSvc)
	requireAdmin := middleware.RequireAdmin(adminIDs)

	protected := func(h http.HandlerFunc) http.Handler {
		return requireToken(h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return requireToken(requireAdmin(h))
	}

	mux.HandleFunc("POST /api/v1/auth/token", authHandler.Token)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/accounts", protected(accountsHandler.Register))
	mux.Handle("GET /api/v1/accounts/{id}/balance", protected(accountsHandler.Balance))
	mux.Handle("GET /api/v1/accounts/{id}/statement", protected(accountsHandler.Statement))
	mux.Handle("POST /api/v1/accounts/{id}/daily", protected(accountsHandler.ClaimDaily))

	mux.Handle("GET /api/v1/tasks", protected(tasksHandler.List))
	mux.Handle("POST /api/v1/tasks/{id}/check", protected(tasksHandler.Check))

	mux.Handle("POST /api/v1/withdrawals", protected(withdrawalsHandler.Create))
	mux.Handle("GET /api/v1/withdrawals", adminOnly(withdrawalsHandler.ListPending))
	mux.Handle("POST /api/v1/withdrawals/{id}/approve", adminOnly(withdrawalsHandler.Approve))
	mux.Handle("POST /api/v1/withdrawals/{id}/reject", adminOnly(withdrawalsHandler.Reject))

	return mux
}
