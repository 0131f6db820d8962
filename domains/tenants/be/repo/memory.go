package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
)

// MemoryDirectory is a simple in-memory directory suitable for tests and
// early development.
type MemoryDirectory struct {
	mu    sync.RWMutex
	byKey map[string]service.Tenant
}

// NewMemoryDirectory constructs a MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byKey: make(map[string]service.Tenant)}
}

func (d *MemoryDirectory) FindByTenantKey(ctx context.Context, tenantKey string) (service.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byKey[tenantKey]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (d *MemoryDirectory) FindActiveByTenantID(ctx context.Context, tenantID string) (service.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.byKey {
		if t.TenantID == tenantID && t.Active {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (d *MemoryDirectory) FindActiveBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.byKey {
		if t.Subdomain == subdomain && t.Active {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (d *MemoryDirectory) ExistsByTenantKey(ctx context.Context, tenantKey string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byKey[tenantKey]
	return ok && t.Active, nil
}

func (d *MemoryDirectory) ExistsByTenantID(ctx context.Context, tenantID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.byKey {
		if t.TenantID == tenantID && t.Active {
			return true, nil
		}
	}
	return false, nil
}

func (d *MemoryDirectory) Save(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[t.TenantKey] = t
	return t, nil
}

func (d *MemoryDirectory) List(ctx context.Context) ([]service.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]service.Tenant, 0, len(d.byKey))
	for _, t := range d.byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ service.Directory = (*MemoryDirectory)(nil)
