package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	platformauth "github.com/rmsphere/control-plane/platform/go/auth"
	"github.com/rmsphere/control-plane/platform/go/requesttrace"
	"github.com/rmsphere/control-plane/platform/go/tenant"
)

// RequestTrace attaches AuditInfo to the context for downstream services.
// Authenticated requests record the principal; everything else is anonymous.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if p, ok := platformauth.PrincipalFromContext(r.Context()); ok {
			if built, err := requesttrace.FromPrincipal(p, requestID); err == nil {
				audit = built
			}
		}
		if audit.TenantID == "" {
			if id, ok := tenant.IDFromContext(r.Context()); ok {
				audit.TenantID = id
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
