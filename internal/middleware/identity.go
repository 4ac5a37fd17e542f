package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"

	"go-classifieds-app/internal/auth"
	"go-classifieds-app/internal/logger"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Identity resolves the acting principal from the Authorization header
// and stores it in the request context. A missing header yields the
// anonymous identity; a present but invalid token is rejected outright
// so ownership checks downstream never see a half-resolved caller.
func Identity(verifier auth.TokenVerifier, enforcer casbin.IEnforcer, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.Anonymous

			header := r.Header.Get("Authorization")
			if header != "" {
				rawToken := strings.TrimPrefix(header, "Bearer ")
				userID, err := verifier.Verify(r.Context(), rawToken)
				if err != nil {
					log.Warn("Rejected request with unverifiable bearer token")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"kind":  "unauthenticated",
						"error": "invalid bearer token",
					})
					return
				}
				caller = auth.CallerIdentity{
					UserID:       userID,
					IsPrivileged: auth.IsPrivileged(enforcer, userID),
				}
			}

			ctx := context.WithValue(r.Context(), callerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller retrieves the caller identity from the request context.
func GetCaller(ctx context.Context) auth.CallerIdentity {
	if caller, ok := ctx.Value(callerContextKey).(auth.CallerIdentity); ok {
		return caller
	}
	return auth.Anonymous
}

// WithCaller returns a context carrying the given identity. Used by tests
// and by internal service-to-service calls.
func WithCaller(ctx context.Context, caller auth.CallerIdentity) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}
