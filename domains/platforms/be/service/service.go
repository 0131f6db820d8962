// Package service holds the platform catalog: product-line groupings of
// tenants with their provisioning state.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Errors returned by the platform service.
var (
	ErrNotFound = errors.New("platform not found")
	ErrConflict = errors.New("platform prefix already exists")
)

var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,20}$`)

// Platform is one product line: the namespacing root for its derived
// database and tenant names.
type Platform struct {
	Prefix string
	Name   string
	// AdminConnString optionally points the bootstrapper at a dedicated
	// database server for this platform; empty means the shared admin
	// connection.
	AdminConnString string
	// DatabaseInitialized gates the bootstrapper's idempotent re-run.
	DatabaseInitialized bool
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TemplateTenantKey derives the platform's template tenant key.
func (p Platform) TemplateTenantKey() string { return p.Prefix + "_template" }

// DefaultTenantKey derives the platform's default tenant key.
func (p Platform) DefaultTenantKey() string { return p.Prefix + "_default" }

// Repository abstracts platform persistence.
type Repository interface {
	ListActive(ctx context.Context) ([]Platform, error)
	Get(ctx context.Context, prefix string) (Platform, error)
	Save(ctx context.Context, p Platform) (Platform, error)
	MarkInitialized(ctx context.Context, prefix string) error
}

// Service provides platform catalog operations.
type Service struct {
	repo Repository
}

// New constructs a Service.
func New(repo Repository) *Service {
	if repo == nil {
		panic("platforms repo is required")
	}
	return &Service{repo: repo}
}

// List returns every active platform.
func (s *Service) List(ctx context.Context) ([]Platform, error) {
	return s.repo.ListActive(ctx)
}

// Get returns one platform by prefix.
func (s *Service) Get(ctx context.Context, prefix string) (Platform, error) {
	return s.repo.Get(ctx, prefix)
}

// Create registers a new platform.
func (s *Service) Create(ctx context.Context, prefix, name, adminConnString string) (Platform, error) {
	prefix = strings.TrimSpace(strings.ToLower(prefix))
	if !prefixPattern.MatchString(prefix) {
		return Platform{}, fmt.Errorf("invalid platform prefix %q", prefix)
	}

	if _, err := s.repo.Get(ctx, prefix); err == nil {
		return Platform{}, fmt.Errorf("%w: %s", ErrConflict, prefix)
	} else if !errors.Is(err, ErrNotFound) {
		return Platform{}, err
	}

	now := time.Now().UTC()
	return s.repo.Save(ctx, Platform{
		Prefix:          prefix,
		Name:            name,
		AdminConnString: adminConnString,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}
