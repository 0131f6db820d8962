package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// ErrTenantNotFound is returned by FactoryFor when the directory has no
// active tenant for the requested id.
var ErrTenantNotFound = errors.New("tenant not found")

// Coordinates are the stored database coordinates of one tenant.
type Coordinates struct {
	Host     string
	Port     uint16
	Database string
	Username string
	Password string
	Schema   string
}

// ConnString renders the coordinates as a pgx connection string.
func (c Coordinates) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.Username, c.Password, c.Host, c.Port, c.Database)
}

// CoordinateSource resolves a tenant id to its database coordinates.
// Implemented by the tenant directory; must return ErrTenantNotFound for
// absent or inactive tenants.
type CoordinateSource interface {
	DatabaseCoordinates(ctx context.Context, tenantID string) (Coordinates, error)
}

// CoordinateSourceFunc adapts a function to CoordinateSource.
type CoordinateSourceFunc func(ctx context.Context, tenantID string) (Coordinates, error)

func (f CoordinateSourceFunc) DatabaseCoordinates(ctx context.Context, tenantID string) (Coordinates, error) {
	return f(ctx, tenantID)
}

// Factory produces connections to exactly one tenant's database. It exposes
// its configured target as first-class accessors for startup diagnostics.
type Factory struct {
	pool   *pgxpool.Pool
	coords Coordinates
}

// Pool returns the underlying connection pool.
func (f *Factory) Pool() *pgxpool.Pool { return f.pool }

// Host returns the configured database host.
func (f *Factory) Host() string { return f.coords.Host }

// Port returns the configured database port.
func (f *Factory) Port() uint16 { return f.coords.Port }

// Database returns the configured database name.
func (f *Factory) Database() string { return f.coords.Database }

// Close releases the factory's pool.
func (f *Factory) Close() { ClosePool(f.pool) }

// Router lazily constructs and caches one connection factory per tenant.
// The cache has no TTL and no dependency tracking; staleness is corrected
// only by explicit Invalidate calls after a tenant record changes.
type Router struct {
	source CoordinateSource

	mu        sync.RWMutex
	factories map[string]*Factory
	group     singleflight.Group
}

// NewRouter constructs a Router backed by the given coordinate source.
func NewRouter(source CoordinateSource) *Router {
	if source == nil {
		panic("router requires a coordinate source")
	}
	return &Router{source: source, factories: make(map[string]*Factory)}
}

// FactoryFor returns the cached factory for tenantID, constructing it on
// first access. Concurrent first accesses for the same tenant are coalesced
// so at most one factory is ever retained per key.
func (r *Router) FactoryFor(ctx context.Context, tenantID string) (*Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[tenantID]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}

	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		// Re-check under the group: a concurrent caller may have completed.
		r.mu.RLock()
		existing, ok := r.factories[tenantID]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		coords, err := r.source.DatabaseCoordinates(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		built, err := r.build(ctx, coords)
		if err != nil {
			return nil, fmt.Errorf("build connection factory for %s: %w", tenantID, err)
		}

		r.mu.Lock()
		if existing, ok := r.factories[tenantID]; ok {
			// Lost an insert race; keep the retained factory.
			r.mu.Unlock()
			built.Close()
			return existing, nil
		}
		r.factories[tenantID] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Factory), nil
}

// Invalidate removes and closes the cached factory for tenantID. Callers
// that update a tenant record must invalidate its entry.
func (r *Router) Invalidate(tenantID string) {
	r.mu.Lock()
	f, ok := r.factories[tenantID]
	delete(r.factories, tenantID)
	r.mu.Unlock()

	if ok {
		f.Close()
	}
}

// Close releases every cached factory.
func (r *Router) Close() {
	r.mu.Lock()
	factories := r.factories
	r.factories = make(map[string]*Factory)
	r.mu.Unlock()

	for _, f := range factories {
		f.Close()
	}
}

func (r *Router) build(ctx context.Context, coords Coordinates) (*Factory, error) {
	poolConfig, err := pgxpool.ParseConfig(coords.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse tenant pool config: %w", err)
	}
	if coords.Schema != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = coords.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create tenant pool: %w", err)
	}

	return &Factory{pool: pool, coords: coords}, nil
}
