package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/starpoints/backend/internal/auth"
)

type contextKey string

const ctxActorKey contextKey = "actor_id"

// RequireToken authenticates the chat gateway's Bearer JWT on every API
// request.
func RequireToken(svc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			if err := svc.ValidateToken(r.Context(), raw); err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin authorizes the acting user (X-Actor-ID header, the Telegram
// id the gateway acts for) against the configured admin set. The check runs
// strictly before any workflow mutation.
func RequireAdmin(adminIDs map[int64]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
			if err != nil {
				http.Error(w, `{"error":"missing or invalid X-Actor-ID header"}`, http.StatusUnauthorized)
				return
			}
			if !adminIDs[actorID] {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ctxActorKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromCtx returns the admin id set by RequireAdmin, or 0.
func ActorFromCtx(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxActorKey).(int64)
	return id
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
