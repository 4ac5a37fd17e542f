package auth

import (
	"go-classifieds-app/internal/apperr"
)

// CallerIdentity is the resolved identity of the acting principal. It is
// passed explicitly into every engine call; the engines never read
// ambient request state.
type CallerIdentity struct {
	UserID       string
	IsPrivileged bool
}

// Anonymous is the identity used when no credential was presented.
var Anonymous = CallerIdentity{}

// Gate performs the ownership check in front of every mutation. The model
// is intentionally minimal: a caller either owns the subject or carries
// the privileged (service/admin) flag.
type Gate struct{}

// NewGate creates a new Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Authorize allows the call iff the caller owns the subject or is
// privileged. An unresolved identity fails as Unauthenticated rather than
// Forbidden so the transport layer can distinguish the two.
func (g *Gate) Authorize(caller CallerIdentity, requiredOwnerID string) error {
	if caller.UserID == "" && !caller.IsPrivileged {
		return apperr.New(apperr.Unauthenticated, "no caller identity resolved")
	}
	if caller.IsPrivileged {
		return nil
	}
	if caller.UserID != requiredOwnerID {
		return apperr.New(apperr.Forbidden, "caller %s does not own subject", caller.UserID)
	}
	return nil
}

// RequirePrivilege allows the call only for privileged callers. The
// explicit-owner ("by-id") operation variants go through this check.
func (g *Gate) RequirePrivilege(caller CallerIdentity) error {
	if caller.UserID == "" && !caller.IsPrivileged {
		return apperr.New(apperr.Unauthenticated, "no caller identity resolved")
	}
	if !caller.IsPrivileged {
		return apperr.New(apperr.Forbidden, "caller %s lacks service privilege", caller.UserID)
	}
	return nil
}
