package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/casbin/casbin/v2"
)

// Authorizer creates a new middleware for route-level authorization.
// It maps the resolved identity to a casbin role and enforces the
// path/method policy. Ownership of individual records is not decided
// here; that is the engines' gate.
func Authorizer(e *casbin.Enforcer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := GetCaller(r.Context())

			role := "anonymous"
			switch {
			case caller.IsPrivileged:
				role = "admin"
			case caller.UserID != "":
				role = "user"
			}

			allowed, err := e.Enforce(role, r.URL.Path, r.Method)
			if err != nil {
				http.Error(w, "Authorization error", http.StatusInternalServerError)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"kind":  "forbidden",
					"error": "route not permitted for caller",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
