package auth

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/config"
)

// TokenVerifier turns a transport-level bearer credential into a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// Authenticator verifies OIDC bearer tokens against the configured issuer.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
}

// NewAuthenticator creates a new Authenticator by setting up the OIDC
// provider via its discovery endpoint.
func NewAuthenticator(ctx context.Context, cfg *config.OIDCConfig) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Verify validates a raw bearer token and returns the subject claim.
// Any verification failure surfaces as Unauthenticated.
func (a *Authenticator) Verify(ctx context.Context, rawToken string) (string, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return "", apperr.New(apperr.Unauthenticated, "missing bearer token")
	}
	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", apperr.Wrap(apperr.Unauthenticated, err, "invalid bearer token")
	}
	if idToken.Subject == "" {
		return "", apperr.New(apperr.Unauthenticated, "token carries no subject")
	}
	return idToken.Subject, nil
}
