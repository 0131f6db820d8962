package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	bySubdomain map[string]string
	err         error
}

func (s *stubDirectory) TenantIDBySubdomain(ctx context.Context, subdomain string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	id, ok := s.bySubdomain[subdomain]
	return id, ok, nil
}

func testResolver(dir DirectoryLookup) *Resolver {
	return NewResolver(ResolverConfig{
		GatewayTenantID: "gateway",
		DefaultTenantID: "master",
		AdminHostMarker: "gateway",
		BaseDomains:     []string{"rmsphere.io"},
	}, dir)
}

func TestResolverPriorityChain(t *testing.T) {
	dir := &stubDirectory{bySubdomain: map[string]string{"acme": "acme"}}
	r := testResolver(dir)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RequestInfo
		want string
	}{
		{"admin marker wins", RequestInfo{Host: "gateway.rmsphere.io"}, "gateway"},
		{"admin marker beats header", RequestInfo{Host: "api-gateway.internal", TenantHeader: "acme"}, "gateway"},
		{"subdomain directory hit", RequestInfo{Host: "acme.rmsphere.io"}, "acme"},
		{"subdomain with port", RequestInfo{Host: "acme.rmsphere.io:8443"}, "acme"},
		{"subdomain miss falls to default", RequestInfo{Host: "unknown.rmsphere.io"}, "master"},
		{"direct domain convention", RequestInfo{Host: "acme.example.com"}, "acme-realm"},
		{"direct domain ignores header", RequestInfo{Host: "beta.example.com", TenantHeader: "acme"}, "beta-realm"},
		{"header when host is bare", RequestInfo{Host: "appserver", TenantHeader: "acme"}, "acme"},
		{"header when host is loopback", RequestInfo{Host: "localhost:3000", TenantHeader: "acme"}, "acme"},
		{"default when nothing matches", RequestInfo{Host: "localhost"}, "master"},
		{"default on empty request", RequestInfo{}, "master"},
		{"base domain itself is not a subdomain", RequestInfo{Host: "rmsphere.io"}, "rmsphere-realm"},
		{"loopback ip uses default", RequestInfo{Host: "127.0.0.1:3000"}, "master"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, r.Resolve(ctx, tt.req))
		})
	}
}

func TestResolverDirectoryErrorDegradesToDefault(t *testing.T) {
	r := testResolver(&stubDirectory{err: errors.New("directory down")})
	got := r.Resolve(context.Background(), RequestInfo{Host: "acme.rmsphere.io"})
	require.Equal(t, "master", got)
}

func TestResolverIsTotal(t *testing.T) {
	r := testResolver(&stubDirectory{})
	hosts := []string{"", " ", "...", "a.b.c.d.e", "ACME.RMSPHERE.IO", "[::1]:8080", "%%%"}
	for _, h := range hosts {
		got := r.Resolve(context.Background(), RequestInfo{Host: h})
		require.NotEmpty(t, got, "host %q", h)
	}
}
