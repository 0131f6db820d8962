package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/platform/go/identity"
	"github.com/rmsphere/control-plane/platform/go/tenant"
)

// VerifierCache lazily builds and caches one OIDC token verifier per realm.
// Discovery runs once per realm; subsequent verifications reuse the cached
// key set.
type VerifierCache struct {
	baseURL string

	mu        sync.Mutex
	verifiers map[string]*gooidc.IDTokenVerifier
}

// NewVerifierCache constructs a VerifierCache rooted at the identity
// provider base URL.
func NewVerifierCache(baseURL string) *VerifierCache {
	return &VerifierCache{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		verifiers: make(map[string]*gooidc.IDTokenVerifier),
	}
}

// Verify checks rawToken against the realm's issuer and returns the
// authenticated principal.
func (c *VerifierCache) Verify(ctx context.Context, realm, rawToken string) (*Principal, error) {
	verifier, err := c.verifierFor(ctx, realm)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	var claims struct {
		Email       string `json:"email"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	return &Principal{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Roles:   claims.RealmAccess.Roles,
	}, nil
}

func (c *VerifierCache) verifierFor(ctx context.Context, realm string) (*gooidc.IDTokenVerifier, error) {
	c.mu.Lock()
	v, ok := c.verifiers[realm]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	issuer := fmt.Sprintf("%s/realms/%s", c.baseURL, realm)
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for realm %s: %w", realm, err)
	}

	// Tokens may be issued to any of the realm's clients (web, mobile,
	// service), so audience is checked downstream, not here.
	verifier := provider.Verifier(&gooidc.Config{SkipClientIDCheck: true})

	c.mu.Lock()
	if existing, ok := c.verifiers[realm]; ok {
		verifier = existing
	} else {
		c.verifiers[realm] = verifier
	}
	c.mu.Unlock()

	return verifier, nil
}

// RequireAuth verifies the bearer token against the realm of the request's
// resolved tenant and attaches the principal to the context. Requests whose
// tenant cannot be mapped to a realm are rejected: authentication never
// falls back to another tenant's realm.
func RequireAuth(cache *VerifierCache, source identity.IdentitySource, logger *zap.Logger) func(http.Handler) http.Handler {
	if cache == nil {
		panic("auth middleware: verifier cache is required")
	}
	if source == nil {
		panic("auth middleware: identity source is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			tenantID, ok := tenant.IDFromContext(r.Context())
			if !ok {
				http.Error(w, "tenant not resolved", http.StatusUnauthorized)
				return
			}

			coords, err := source.IdentityCoordinates(r.Context(), tenantID)
			if err != nil {
				http.Error(w, "unknown tenant", http.StatusUnauthorized)
				return
			}

			principal, err := cache.Verify(r.Context(), coords.RealmName, raw)
			if err != nil {
				if logger != nil {
					logger.Debug("token verification failed", zap.String("tenant_id", tenantID), zap.Error(err))
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			principal.TenantID = tenantID

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole gates a route group on a realm role of the authenticated
// principal.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}
			if !p.HasRole(role) {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}
