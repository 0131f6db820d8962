// Package auth verifies inbound bearer tokens against the issuing tenant's
// identity realm and carries the authenticated principal on the context.
package auth

import (
	"context"
)

// Principal is the authenticated caller extracted from a verified token.
type Principal struct {
	Subject  string
	Email    string
	TenantID string
	Roles    []string
}

// HasRole reports whether the principal carries the given realm role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal, if present.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
