package middleware

import (
	"net/http"

	"github.com/rmsphere/control-plane/platform/go/tenant"
)

// TenantHeader is the explicit tenant-identifying request header consumed by
// the resolver when no host rule matches.
const TenantHeader = "X-Tenant-ID"

// WithTenantID resolves the tenant for every request and attaches the id to
// the request context. Resolution is total, so this middleware never rejects
// a request.
func WithTenantID(resolver *tenant.Resolver) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolver.Resolve(r.Context(), tenant.RequestInfo{
				Host:         r.Host,
				TenantHeader: r.Header.Get(TenantHeader),
				UserAgent:    r.UserAgent(),
			})

			ctx := tenant.WithID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
