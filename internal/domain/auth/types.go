// Package auth contains the domain types and logic for authentication.
package auth

import (
	"context"
	"errors"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/ctxkey"
)

// PrincipalKind identifies how a caller was authenticated.
type PrincipalKind string

const (
	// PrincipalStatic is a caller presenting the shared service token.
	PrincipalStatic PrincipalKind = "static"
	// PrincipalJWT is a caller presenting a verified identity-provider JWT.
	PrincipalJWT PrincipalKind = "jwt"
	// PrincipalAnonymous is used when authentication is disabled (dev mode).
	PrincipalAnonymous PrincipalKind = "anonymous"
)

// Principal is an authenticated caller.
type Principal struct {
	// Subject is the token subject ("sub" claim) or a fixed label for
	// static and anonymous callers.
	Subject string
	// OrgID is the caller's organization, used as the default tenant.
	OrgID string
	// Kind records how the caller was authenticated.
	Kind PrincipalKind
	// Claims holds the verified JWT claims. Nil for static callers.
	Claims map[string]any
}

// TokenVerifier verifies a bearer token and returns the caller.
// Implementations: StaticTokenVerifier (this package), clerk.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// OrgFromClaims returns the organization claim, accepting both "org_id"
// and "organization_id".
func OrgFromClaims(claims map[string]any) string {
	for _, key := range []string{"org_id", "organization_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Chain tries each verifier in order and returns the first principal.
// The static verifier goes first so the shared secret never reaches the
// JWT parser.
type Chain []TokenVerifier

// Verify implements TokenVerifier. When every verifier rejects the token
// the last error is returned; it wraps ErrInvalidToken unless a verifier
// failed for another reason (for example an unreachable key set).
func (c Chain) Verify(ctx context.Context, token string) (*Principal, error) {
	err := ErrInvalidToken
	for _, v := range c {
		if v == nil {
			continue
		}
		p, verr := v.Verify(ctx, token)
		if verr == nil {
			return p, nil
		}
		// A later verifier's rejection does not hide an earlier
		// infrastructure failure.
		if errors.Is(err, ErrInvalidToken) {
			err = verr
		}
	}
	return nil, err
}

// Anonymous returns the principal used when authentication is disabled.
func Anonymous() *Principal {
	return &Principal{Subject: "anonymous", Kind: PrincipalAnonymous}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxkey.PrincipalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxkey.PrincipalKey{}).(*Principal)
	return p
}
