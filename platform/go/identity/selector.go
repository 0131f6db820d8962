package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rmsphere/control-plane/platform/go/tenant"
)

// mobileTokens are the user-agent substrings that classify a caller as a
// mobile app. Matching is case-insensitive.
var mobileTokens = []string{"android", "iphone", "ipad", "mobile", "okhttp", "dart"}

// TenantIdentity is the identity slice of a tenant record consumed by the
// selector.
type TenantIdentity struct {
	RealmName    string
	ClientID     string
	ClientSecret string
}

// IdentitySource resolves a tenant id to its stored identity coordinates.
// Lookup errors must propagate; the selector never falls back to another
// tenant's credentials.
type IdentitySource interface {
	IdentityCoordinates(ctx context.Context, tenantID string) (TenantIdentity, error)
}

// Selector picks the identity-provider client registration an authentication
// attempt should use: the tenant's public mobile client for mobile callers,
// the tenant's confidential web client otherwise.
type Selector struct {
	resolver *tenant.Resolver
	source   IdentitySource
	baseURL  string
}

// NewSelector constructs a Selector. baseURL is the identity provider root
// used to build realm issuer URLs.
func NewSelector(resolver *tenant.Resolver, source IdentitySource, baseURL string) *Selector {
	if resolver == nil {
		panic("selector requires a resolver")
	}
	if source == nil {
		panic("selector requires an identity source")
	}
	return &Selector{resolver: resolver, source: source, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Select resolves the request's tenant and builds its client registration.
// A directory failure fails the selection closed: no cross-tenant fallback.
func (s *Selector) Select(ctx context.Context, req tenant.RequestInfo) (ClientRegistration, error) {
	tenantID := s.resolver.Resolve(ctx, req)

	coords, err := s.source.IdentityCoordinates(ctx, tenantID)
	if err != nil {
		return ClientRegistration{}, fmt.Errorf("select client for tenant %s: %w", tenantID, err)
	}

	issuer := fmt.Sprintf("%s/realms/%s", s.baseURL, coords.RealmName)

	if isMobileUserAgent(req.UserAgent) {
		// Mobile clients are public: no secret is ever issued to them.
		return ClientRegistration{
			ClientID: tenantID + "-mobile-app",
			Issuer:   issuer,
		}, nil
	}

	return ClientRegistration{
		ClientID:     coords.ClientID,
		ClientSecret: coords.ClientSecret,
		Issuer:       issuer,
	}, nil
}

func isMobileUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}
