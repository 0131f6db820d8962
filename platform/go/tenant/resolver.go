package tenant

import (
	"context"
	"net"
	"strings"
)

// DirectoryLookup is the minimal tenant-directory capability the resolver
// needs: map a subdomain to the tenant id of an active tenant. The second
// return reports whether a tenant matched; a miss is not an error.
type DirectoryLookup interface {
	TenantIDBySubdomain(ctx context.Context, subdomain string) (string, bool, error)
}

// ResolverConfig fixes the deterministic resolution chain.
type ResolverConfig struct {
	// GatewayTenantID is returned for hosts carrying the admin marker.
	GatewayTenantID string
	// DefaultTenantID is the terminal fallback; resolution never fails.
	DefaultTenantID string
	// AdminHostMarker flags admin/gateway hosts (substring match).
	AdminHostMarker string
	// BaseDomains are the known platform domains subdomains are derived from.
	BaseDomains []string
}

// RequestInfo carries the inbound signals consumed during resolution.
// None of the values are validated beyond presence; malformed input degrades
// to the default tenant.
type RequestInfo struct {
	Host         string
	TenantHeader string
	UserAgent    string
}

// Resolver maps an inbound request to a tenant id using a fixed priority
// chain: admin host, subdomain lookup, direct-domain convention, explicit
// header, configured default. Every rule short-circuits and no rule ever
// fails the request.
type Resolver struct {
	cfg       ResolverConfig
	directory DirectoryLookup
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig, directory DirectoryLookup) *Resolver {
	if cfg.DefaultTenantID == "" {
		panic("resolver requires a default tenant id")
	}
	if directory == nil {
		panic("resolver requires a directory lookup")
	}
	return &Resolver{cfg: cfg, directory: directory}
}

// Resolve returns a tenant id for the request. It always terminates with
// some tenant id, possibly the default; callers needing strict isolation
// must treat the default tenant as a sentinel and reject it downstream.
func (r *Resolver) Resolve(ctx context.Context, req RequestInfo) string {
	host := hostWithoutPort(req.Host)

	if r.cfg.AdminHostMarker != "" && strings.Contains(host, r.cfg.AdminHostMarker) {
		return r.cfg.GatewayTenantID
	}

	if sub, ok := r.subdomain(host); ok {
		id, found, err := r.directory.TenantIDBySubdomain(ctx, sub)
		if err == nil && found {
			return id
		}
		// Lookup miss (or directory error) is not a resolution failure.
		return r.cfg.DefaultTenantID
	}

	// Direct-domain convention: {firstLabel}-realm, no directory lookup.
	// Note this path trusts naming convention alone while the subdomain path
	// trusts the directory; downstream code depends on both behaviors.
	if strings.Contains(host, ".") && !isLoopbackHost(host) {
		first := host[:strings.Index(host, ".")]
		if first != "" {
			return first + "-realm"
		}
	}

	if req.TenantHeader != "" {
		return req.TenantHeader
	}

	return r.cfg.DefaultTenantID
}

// subdomain derives the subdomain of host against the known base domains.
func (r *Resolver) subdomain(host string) (string, bool) {
	for _, base := range r.cfg.BaseDomains {
		base = strings.TrimSpace(base)
		if base == "" || host == base {
			continue
		}
		if strings.HasSuffix(host, "."+base) {
			sub := strings.TrimSuffix(host, "."+base)
			if sub != "" {
				return sub, true
			}
		}
	}
	return "", false
}

func hostWithoutPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
