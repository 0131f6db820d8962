// Package bootstrap brings each configured platform's template and default
// databases and tenant records into existence at process start.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	sqlassets "github.com/rmsphere/control-plane/database"
	platformsvc "github.com/rmsphere/control-plane/domains/platforms/be/service"
	"github.com/rmsphere/control-plane/domains/tenants/be/provisioning"
	tenantsvc "github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/migrate"
)

// AdminConnect dials an administrative channel for a platform-specific
// server. Wired to persistence.NewAdminDB in production.
type AdminConnect func(ctx context.Context, connString string) (provisioning.AdminChannel, error)

// Config tunes the bootstrapper.
type Config struct {
	// SeedDemoRows populates baseline demo rows keyed by platform prefix.
	SeedDemoRows bool
}

// Bootstrapper ensures template/default databases and tenant records exist
// for every active platform not yet marked initialized. Idempotent and
// best-effort: a platform whose admin server is unreachable is skipped
// without failing process startup.
type Bootstrapper struct {
	platforms platformsvc.Repository
	tenants   tenantsvc.Directory
	admin     provisioning.AdminChannel // shared channel; may be nil
	connect   AdminConnect
	migrator  migrate.Migrator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Bootstrapper. admin is the shared administrative channel
// used for platforms without a dedicated server; connect dials dedicated
// servers and may be nil when every platform uses the shared channel.
func New(platforms platformsvc.Repository, tenants tenantsvc.Directory, admin provisioning.AdminChannel, connect AdminConnect, migrator migrate.Migrator, cfg Config, logger *zap.Logger) *Bootstrapper {
	if platforms == nil || tenants == nil {
		panic("bootstrapper requires platform and tenant stores")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		platforms: platforms,
		tenants:   tenants,
		admin:     admin,
		connect:   connect,
		migrator:  migrator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes every active, uninitialized platform. Per-platform failures
// are logged and skipped; Run only errors when the platform catalog itself
// is unreadable.
func (b *Bootstrapper) Run(ctx context.Context) error {
	platforms, err := b.platforms.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list platforms: %w", err)
	}

	for _, p := range platforms {
		if p.DatabaseInitialized {
			continue
		}
		if err := b.initializePlatform(ctx, p); err != nil {
			b.logger.Warn("platform bootstrap skipped",
				zap.String("prefix", p.Prefix), zap.Error(err))
		}
	}
	return nil
}

func (b *Bootstrapper) initializePlatform(ctx context.Context, p platformsvc.Platform) error {
	admin, err := b.adminFor(ctx, p)
	if err != nil {
		// Absent credentials or unreachable server: skip, non-fatal.
		return fmt.Errorf("admin connectivity: %w", err)
	}

	prov := provisioning.NewDBProvisioner(admin, b.migrator, b.logger)

	for _, tenantKey := range []string{p.TemplateTenantKey(), p.DefaultTenantKey()} {
		if err := b.ensureTenant(ctx, admin, prov, p, tenantKey); err != nil {
			return fmt.Errorf("ensure %s: %w", tenantKey, err)
		}
	}

	if err := b.platforms.MarkInitialized(ctx, p.Prefix); err != nil {
		return fmt.Errorf("mark initialized: %w", err)
	}

	b.logger.Info("platform initialized", zap.String("prefix", p.Prefix))
	return nil
}

func (b *Bootstrapper) adminFor(ctx context.Context, p platformsvc.Platform) (provisioning.AdminChannel, error) {
	if p.AdminConnString != "" {
		if b.connect == nil {
			return nil, fmt.Errorf("no dialer for dedicated admin server")
		}
		return b.connect(ctx, p.AdminConnString)
	}
	if b.admin == nil {
		return nil, fmt.Errorf("no admin credentials configured")
	}
	return b.admin, nil
}

// ensureTenant checks existence before provisioning, making re-runs
// idempotent at this level: the database saga itself treats duplicates as
// errors.
func (b *Bootstrapper) ensureTenant(ctx context.Context, admin provisioning.AdminChannel, prov *provisioning.DBProvisioner, p platformsvc.Platform, tenantKey string) error {
	dbName := tenantsvc.DatabaseNameFor(tenantKey)

	exists, err := admin.DatabaseExists(ctx, dbName)
	if err != nil {
		return err
	}

	var coords tenantsvc.DBProvisionResult
	if exists {
		b.logger.Debug("database already present", zap.String("database", dbName))
		coords = tenantsvc.DBProvisionResult{
			Host:     admin.Host(),
			Port:     admin.Port(),
			Database: dbName,
			Username: tenantsvc.DatabaseUserFor(tenantKey),
			Schema:   "public",
		}
	} else {
		coords, err = prov.Provision(ctx, tenantsvc.DBProvisionRequest{TenantKey: tenantKey})
		if err != nil {
			return err
		}
		if b.cfg.SeedDemoRows {
			if err := b.seedDemo(ctx, admin, dbName, p.Prefix); err != nil {
				return err
			}
		}
	}

	return b.ensureRecord(ctx, p, tenantKey, coords)
}

func (b *Bootstrapper) seedDemo(ctx context.Context, admin provisioning.AdminChannel, dbName, prefix string) error {
	conn, err := admin.OpenDatabase(ctx, dbName)
	if err != nil {
		return err
	}
	defer conn.Close(ctx) // nolint:errcheck

	if _, err := conn.Exec(ctx, sqlassets.DemoSeedSQL, prefix); err != nil {
		return fmt.Errorf("seed demo rows: %w", err)
	}
	return nil
}

// ensureRecord creates the directory record if absent, looked up by tenant
// key, never overwriting an existing one.
func (b *Bootstrapper) ensureRecord(ctx context.Context, p platformsvc.Platform, tenantKey string, coords tenantsvc.DBProvisionResult) error {
	if _, err := b.tenants.FindByTenantKey(ctx, tenantKey); err == nil {
		return nil
	} else if !errors.Is(err, tenantsvc.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	_, err := b.tenants.Save(ctx, tenantsvc.Tenant{
		TenantKey: tenantKey,
		TenantID:  tenantKey,
		Name:      p.Name + " " + tenantKey,

		DBHost:     coords.Host,
		DBPort:     coords.Port,
		DBName:     coords.Database,
		DBUsername: coords.Username,
		DBPassword: coords.Password,
		DBSchema:   coords.Schema,

		RealmName: tenantsvc.RealmNameFor(tenantKey),
		ClientID:  tenantsvc.WebClientIDFor(tenantKey),

		Active:     true,
		IsTemplate: tenantKey == p.TemplateTenantKey(),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return err
}
