package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/platform/go/identity"
	"github.com/rmsphere/control-plane/platform/go/persistence"
)

// Errors returned by the service layer.
var (
	ErrNotFound   = errors.New("tenant not found")
	ErrConflict   = errors.New("tenant key or id already exists")
	ErrInvalidKey = errors.New("invalid tenant key")
)

var tenantKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,30}$`)

// Tenant is the directory record of one isolated customer installation.
// Database coordinates and realm name are set atomically with creation and
// are never partially populated.
type Tenant struct {
	TenantKey string
	TenantID  string
	Name      string
	Subdomain string

	DBHost     string
	DBPort     uint16
	DBName     string
	DBUsername string
	DBPassword string
	DBSchema   string

	RealmName    string
	ClientID     string
	ClientSecret string
	DefaultRoles string

	Active     bool
	IsTemplate bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultRoleNames are the realm roles provisioned for every tenant.
var DefaultRoleNames = []string{
	"admin", "manager", "accountant", "cashier",
	"waiter", "kitchen", "inventory", "reporting",
}

// DatabaseNameFor derives the tenant database name from the immutable key.
func DatabaseNameFor(tenantKey string) string { return "rms_" + tenantKey }

// DatabaseUserFor derives the dedicated database account name.
func DatabaseUserFor(tenantKey string) string { return "rms_" + tenantKey + "_user" }

// RealmNameFor derives the identity realm name.
func RealmNameFor(tenantKey string) string { return tenantKey + "_realm" }

// WebClientIDFor derives the confidential web client id.
func WebClientIDFor(tenantKey string) string { return tenantKey + "-web-app" }

// Directory abstracts the durable tenant store.
type Directory interface {
	FindByTenantKey(ctx context.Context, tenantKey string) (Tenant, error)
	FindActiveByTenantID(ctx context.Context, tenantID string) (Tenant, error)
	FindActiveBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	Save(ctx context.Context, t Tenant) (Tenant, error)
	ExistsByTenantKey(ctx context.Context, tenantKey string) (bool, error)
	ExistsByTenantID(ctx context.Context, tenantID string) (bool, error)
	List(ctx context.Context) ([]Tenant, error)
}

// CreateInput represents the administrative request to register a tenant.
type CreateInput struct {
	TenantKey string
	TenantID  string // defaults to TenantKey
	Name      string
	Subdomain string
	// ApplySchemaNow requests the full declarative schema during creation;
	// otherwise only the baseline table set is installed.
	ApplySchemaNow bool
	IsTemplate     bool
}

// DatasourceConfig is the read-only projection of a tenant's database
// coordinates exported to trusted internal services.
type DatasourceConfig struct {
	URL             string `json:"url"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	MaxPoolSize     int    `json:"maxPoolSize"`
	MinIdle         int    `json:"minIdle"`
	ValidationQuery string `json:"validationQuery"`
}

// Service orchestrates tenant registration: directory record, database saga
// and identity saga, plus the request-path read projections.
type Service struct {
	dir    Directory
	db     DatabaseProvisioner
	realm  RealmProvisioner
	router *persistence.Router
	logger *zap.Logger
}

// New constructs a Service with required dependencies. The router may be nil
// in administrative tools that never serve request traffic.
func New(dir Directory, db DatabaseProvisioner, realm RealmProvisioner, router *persistence.Router, logger *zap.Logger) *Service {
	if dir == nil {
		panic("tenants directory is required")
	}
	if db == nil || realm == nil {
		panic("provisioners are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{dir: dir, db: db, realm: realm, router: router, logger: logger}
}

// Create registers a new tenant: rejects duplicates before any side effect,
// then runs the database saga and the identity saga back-to-back. Each saga
// compensates its own resources on failure; because both are invoked from
// this single administrative action, a failed identity saga also unwinds the
// already-committed database saga before the error surfaces.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	key := strings.TrimSpace(strings.ToLower(input.TenantKey))
	if !tenantKeyPattern.MatchString(key) {
		return Tenant{}, fmt.Errorf("%w: %q", ErrInvalidKey, input.TenantKey)
	}

	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		tenantID = key
	}

	if exists, err := s.dir.ExistsByTenantKey(ctx, key); err != nil {
		return Tenant{}, fmt.Errorf("check tenant key: %w", err)
	} else if exists {
		return Tenant{}, fmt.Errorf("%w: tenant key %q", ErrConflict, key)
	}
	if exists, err := s.dir.ExistsByTenantID(ctx, tenantID); err != nil {
		return Tenant{}, fmt.Errorf("check tenant id: %w", err)
	} else if exists {
		return Tenant{}, fmt.Errorf("%w: tenant id %q", ErrConflict, tenantID)
	}

	dbResult, err := s.db.Provision(ctx, DBProvisionRequest{
		TenantKey:      key,
		ApplySchemaNow: input.ApplySchemaNow,
	})
	if err != nil {
		return Tenant{}, fmt.Errorf("provision database for tenant %s: %w", key, err)
	}

	realmResult, err := s.realm.Provision(ctx, RealmProvisionRequest{
		TenantKey:   key,
		TenantID:    tenantID,
		DisplayName: input.Name,
	})
	if err != nil {
		// The database saga committed before the identity saga began; this
		// administrative action invoked both, so unwind the database too.
		if dropErr := s.db.Deprovision(ctx, key); dropErr != nil {
			s.logger.Error("database cleanup after identity failure",
				zap.String("tenant_key", key), zap.Error(dropErr))
		}
		return Tenant{}, fmt.Errorf("provision identity realm for tenant %s: %w", key, err)
	}

	now := time.Now().UTC()
	t := Tenant{
		TenantKey: key,
		TenantID:  tenantID,
		Name:      input.Name,
		Subdomain: strings.TrimSpace(strings.ToLower(input.Subdomain)),

		DBHost:     dbResult.Host,
		DBPort:     dbResult.Port,
		DBName:     dbResult.Database,
		DBUsername: dbResult.Username,
		DBPassword: dbResult.Password,
		DBSchema:   dbResult.Schema,

		RealmName:    realmResult.RealmName,
		ClientID:     realmResult.ClientID,
		ClientSecret: realmResult.ClientSecret,
		DefaultRoles: strings.Join(DefaultRoleNames, ","),

		Active:     true,
		IsTemplate: input.IsTemplate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	saved, err := s.dir.Save(ctx, t)
	if err != nil {
		// Directory write is the last step; unwind both sagas so no
		// unreachable database/realm survives.
		if dropErr := s.realm.Deprovision(ctx, realmResult.RealmName); dropErr != nil {
			s.logger.Error("realm cleanup after directory failure",
				zap.String("tenant_key", key), zap.Error(dropErr))
		}
		if dropErr := s.db.Deprovision(ctx, key); dropErr != nil {
			s.logger.Error("database cleanup after directory failure",
				zap.String("tenant_key", key), zap.Error(dropErr))
		}
		return Tenant{}, fmt.Errorf("save tenant record: %w", err)
	}

	s.logger.Info("tenant provisioned",
		zap.String("tenant_key", saved.TenantKey),
		zap.String("tenant_id", saved.TenantID),
		zap.String("database", saved.DBName),
		zap.String("realm", saved.RealmName),
	)
	return saved, nil
}

// Get returns the tenant with the given key.
func (s *Service) Get(ctx context.Context, tenantKey string) (Tenant, error) {
	return s.dir.FindByTenantKey(ctx, tenantKey)
}

// List returns every directory record.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.dir.List(ctx)
}

// Update persists mutable fields and invalidates the tenant's cached
// connection factory so the next access rebuilds it from fresh coordinates.
func (s *Service) Update(ctx context.Context, t Tenant) (Tenant, error) {
	current, err := s.dir.FindByTenantKey(ctx, t.TenantKey)
	if err != nil {
		return Tenant{}, err
	}

	next := current
	next.Name = t.Name
	next.Subdomain = t.Subdomain
	next.Active = t.Active
	next.UpdatedAt = time.Now().UTC()

	saved, err := s.dir.Save(ctx, next)
	if err != nil {
		return Tenant{}, err
	}

	if s.router != nil {
		s.router.Invalidate(saved.TenantID)
	}
	return saved, nil
}

// Delete soft-deletes the directory record and hard-deletes the backing
// database and identity realm.
func (s *Service) Delete(ctx context.Context, tenantKey string) error {
	t, err := s.dir.FindByTenantKey(ctx, tenantKey)
	if err != nil {
		return err
	}

	if err := s.realm.Deprovision(ctx, t.RealmName); err != nil {
		return fmt.Errorf("delete realm %s: %w", t.RealmName, err)
	}
	if err := s.db.Deprovision(ctx, t.TenantKey); err != nil {
		return fmt.Errorf("delete database for %s: %w", t.TenantKey, err)
	}

	t.Active = false
	t.UpdatedAt = time.Now().UTC()
	if _, err := s.dir.Save(ctx, t); err != nil {
		return fmt.Errorf("soft-delete tenant record: %w", err)
	}

	if s.router != nil {
		s.router.Invalidate(t.TenantID)
	}

	s.logger.Info("tenant deleted", zap.String("tenant_key", t.TenantKey))
	return nil
}

// ApplySchema re-runs the declarative schema against an existing tenant's
// database using the stored coordinates.
func (s *Service) ApplySchema(ctx context.Context, tenantKey string) error {
	t, err := s.dir.FindByTenantKey(ctx, tenantKey)
	if err != nil {
		return err
	}

	err = s.db.ApplySchema(ctx, t.TenantKey, DBProvisionResult{
		Host:     t.DBHost,
		Port:     t.DBPort,
		Database: t.DBName,
		Username: t.DBUsername,
		Password: t.DBPassword,
		Schema:   t.DBSchema,
	})
	if err != nil {
		return fmt.Errorf("apply schema for %s: %w", tenantKey, err)
	}

	s.logger.Info("tenant schema applied", zap.String("tenant_key", t.TenantKey))
	return nil
}

// Datasource exports a tenant's database coordinates to trusted internal
// callers.
func (s *Service) Datasource(ctx context.Context, tenantID string) (DatasourceConfig, error) {
	t, err := s.dir.FindActiveByTenantID(ctx, tenantID)
	if err != nil {
		return DatasourceConfig{}, err
	}

	return DatasourceConfig{
		URL:             fmt.Sprintf("postgres://%s:%d/%s", t.DBHost, t.DBPort, t.DBName),
		Username:        t.DBUsername,
		Password:        t.DBPassword,
		MaxPoolSize:     10,
		MinIdle:         2,
		ValidationQuery: "SELECT 1",
	}, nil
}

// TenantIDBySubdomain implements the resolver's directory lookup. A miss is
// reported through the boolean, never as an error.
func (s *Service) TenantIDBySubdomain(ctx context.Context, subdomain string) (string, bool, error) {
	t, err := s.dir.FindActiveBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return t.TenantID, true, nil
}

// DatabaseCoordinates implements the connection router's source.
func (s *Service) DatabaseCoordinates(ctx context.Context, tenantID string) (persistence.Coordinates, error) {
	t, err := s.dir.FindActiveByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return persistence.Coordinates{}, fmt.Errorf("%w: %s", persistence.ErrTenantNotFound, tenantID)
		}
		return persistence.Coordinates{}, err
	}
	return persistence.Coordinates{
		Host:     t.DBHost,
		Port:     t.DBPort,
		Database: t.DBName,
		Username: t.DBUsername,
		Password: t.DBPassword,
		Schema:   t.DBSchema,
	}, nil
}

// IdentityCoordinates implements the client selector's source.
func (s *Service) IdentityCoordinates(ctx context.Context, tenantID string) (identity.TenantIdentity, error) {
	t, err := s.dir.FindActiveByTenantID(ctx, tenantID)
	if err != nil {
		return identity.TenantIdentity{}, err
	}
	return identity.TenantIdentity{
		RealmName:    t.RealmName,
		ClientID:     t.ClientID,
		ClientSecret: t.ClientSecret,
	}, nil
}
