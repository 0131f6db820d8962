package tenant

import (
	"context"
)

type ctxKey struct{}

// WithID returns a derived context carrying the resolved tenant id.
// Resolution happens once per request in middleware; everything downstream
// reads the id from the context instead of re-deriving it.
func WithID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// IDFromContext extracts the tenant id and a boolean indicating presence.
func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok
}
