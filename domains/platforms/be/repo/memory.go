package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/rmsphere/control-plane/domains/platforms/be/service"
)

// MemoryRepository is an in-memory platform catalog for tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	byPrefix map[string]service.Platform
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byPrefix: make(map[string]service.Platform)}
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]service.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]service.Platform, 0, len(r.byPrefix))
	for _, p := range r.byPrefix {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

func (r *MemoryRepository) Get(ctx context.Context, prefix string) (service.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPrefix[prefix]
	if !ok {
		return service.Platform{}, service.ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) Save(ctx context.Context, p service.Platform) (service.Platform, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPrefix[p.Prefix] = p
	return p, nil
}

func (r *MemoryRepository) MarkInitialized(ctx context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byPrefix[prefix]
	if !ok {
		return service.ErrNotFound
	}
	p.DatabaseInitialized = true
	r.byPrefix[prefix] = p
	return nil
}

var _ service.Repository = (*MemoryRepository)(nil)
