package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"

	"go-classifieds-app/internal/logger"
)

// SeedDefaultPolicies ensures that the application has a baseline set of
// route authorization rules. It checks if each default policy exists before
// adding it, making the operation idempotent and safe to run on every
// application start.
func SeedDefaultPolicies(e casbin.IEnforcer, log logger.Logger) {
	log.Info("Seeding default authorization policies...")

	// Anonymous callers can browse categories; authenticated users can
	// manage their own ads and companies; admins additionally reach the
	// explicit-owner and moderation routes.
	policies := [][]string{
		{"anonymous", "/categories/*", "GET"},
		{"anonymous", "/metrics", "GET"},

		{"user", "/ads", "POST"},
		{"user", "/ads/*", "GET"},
		{"user", "/ads/*", "POST"},
		{"user", "/ads/*", "DELETE"},
		{"user", "/companies", "POST"},
		{"user", "/companies/*", "GET"},
		{"user", "/companies/*", "POST"},
		{"user", "/companies/*", "DELETE"},

		{"admin", "/categories/*", "POST"},
		{"admin", "/categories/*", "PUT"},
		{"admin", "/categories/*", "DELETE"},
		{"admin", "/admin/*", "GET"},
		{"admin", "/admin/*", "POST"},
		{"admin", "/admin/*", "PUT"},
		{"admin", "/admin/*", "DELETE"},
	}
	for _, p := range policies {
		if has, _ := e.HasPolicy(p); !has {
			if _, err := e.AddPolicy(p); err != nil {
				log.Error(err, fmt.Sprintf("Failed to add policy %v", p))
			}
		}
	}

	// Role inheritance: users see everything anonymous callers see, admins
	// everything users see, and service accounts act with admin reach.
	groupings := [][2]string{
		{"user", "anonymous"},
		{"admin", "user"},
		{"service", "admin"},
	}
	for _, g := range groupings {
		if has, _ := e.HasRoleForUser(g[0], g[1]); !has {
			if _, err := e.AddRoleForUser(g[0], g[1]); err != nil {
				log.Error(err, fmt.Sprintf("Failed to add role %s -> %s", g[0], g[1]))
			}
		}
	}
	log.Info("Policy seeding complete.")
}
