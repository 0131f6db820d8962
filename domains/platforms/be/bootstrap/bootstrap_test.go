package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	platformsrepo "github.com/rmsphere/control-plane/domains/platforms/be/repo"
	platformsvc "github.com/rmsphere/control-plane/domains/platforms/be/service"
	"github.com/rmsphere/control-plane/domains/tenants/be/provisioning"
	tenantsrepo "github.com/rmsphere/control-plane/domains/tenants/be/repo"
	tenantsvc "github.com/rmsphere/control-plane/domains/tenants/be/service"
)

// stubAdmin serves the existence-check path of the bootstrapper.
type stubAdmin struct {
	mu        sync.Mutex
	databases map[string]bool
	execs     []string
}

func newStubAdmin(existing ...string) *stubAdmin {
	dbs := make(map[string]bool, len(existing))
	for _, name := range existing {
		dbs[name] = true
	}
	return &stubAdmin{databases: dbs}
}

func (a *stubAdmin) Exec(ctx context.Context, sql string, args ...any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execs = append(a.execs, sql)
	return nil
}

func (a *stubAdmin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.databases[name], nil
}

func (a *stubAdmin) RoleExists(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (a *stubAdmin) TerminateConnections(ctx context.Context, database string) error {
	return nil
}

func (a *stubAdmin) OpenDatabase(ctx context.Context, database string) (*pgx.Conn, error) {
	return nil, fmt.Errorf("stub admin cannot open %s", database)
}

func (a *stubAdmin) Host() string { return "db.internal" }
func (a *stubAdmin) Port() uint16 { return 5432 }

var _ provisioning.AdminChannel = (*stubAdmin)(nil)

func seedPlatform(t *testing.T, repo *platformsrepo.MemoryRepository, prefix string) {
	t.Helper()
	_, err := repo.Save(context.Background(), platformsvc.Platform{
		Prefix: prefix,
		Name:   "Demo",
		Active: true,
	})
	require.NoError(t, err)
}

func TestBootstrapperEnsuresRecordsForExistingDatabases(t *testing.T) {
	ctx := context.Background()
	platforms := platformsrepo.NewMemoryRepository()
	tenants := tenantsrepo.NewMemoryDirectory()
	seedPlatform(t, platforms, "rms")

	admin := newStubAdmin("rms_rms_template", "rms_rms_default")
	b := New(platforms, tenants, admin, nil, nil, Config{}, nil)

	require.NoError(t, b.Run(ctx))

	template, err := tenants.FindByTenantKey(ctx, "rms_template")
	require.NoError(t, err)
	require.True(t, template.IsTemplate)
	require.True(t, template.Active)
	require.Equal(t, "rms_rms_template", template.DBName)
	require.Equal(t, "rms_template_realm", template.RealmName)

	def, err := tenants.FindByTenantKey(ctx, "rms_default")
	require.NoError(t, err)
	require.False(t, def.IsTemplate)

	p, err := platforms.Get(ctx, "rms")
	require.NoError(t, err)
	require.True(t, p.DatabaseInitialized)
}

func TestBootstrapperIsIdempotent(t *testing.T) {
	ctx := context.Background()
	platforms := platformsrepo.NewMemoryRepository()
	tenants := tenantsrepo.NewMemoryDirectory()
	seedPlatform(t, platforms, "rms")

	admin := newStubAdmin("rms_rms_template", "rms_rms_default")
	b := New(platforms, tenants, admin, nil, nil, Config{}, nil)

	require.NoError(t, b.Run(ctx))

	// Tamper-proof re-run: the existing record must not be overwritten.
	stored, err := tenants.FindByTenantKey(ctx, "rms_template")
	require.NoError(t, err)
	stored.Name = "Manually Renamed"
	_, err = tenants.Save(ctx, stored)
	require.NoError(t, err)

	require.NoError(t, b.Run(ctx))

	after, err := tenants.FindByTenantKey(ctx, "rms_template")
	require.NoError(t, err)
	require.Equal(t, "Manually Renamed", after.Name)
}

func TestBootstrapperSkipsPlatformWithoutAdminAccess(t *testing.T) {
	ctx := context.Background()
	platforms := platformsrepo.NewMemoryRepository()
	tenants := tenantsrepo.NewMemoryDirectory()
	seedPlatform(t, platforms, "rms")

	// No shared channel and no dialer: connectivity is absent, the platform
	// is skipped and Run still succeeds.
	b := New(platforms, tenants, nil, nil, nil, Config{}, nil)
	require.NoError(t, b.Run(ctx))

	p, err := platforms.Get(ctx, "rms")
	require.NoError(t, err)
	require.False(t, p.DatabaseInitialized)

	_, err = tenants.FindByTenantKey(ctx, "rms_template")
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
}

func TestBootstrapperSkipsAlreadyInitializedPlatforms(t *testing.T) {
	ctx := context.Background()
	platforms := platformsrepo.NewMemoryRepository()
	tenants := tenantsrepo.NewMemoryDirectory()

	_, err := platforms.Save(ctx, platformsvc.Platform{
		Prefix:              "rms",
		Name:                "Demo",
		Active:              true,
		DatabaseInitialized: true,
	})
	require.NoError(t, err)

	b := New(platforms, tenants, newStubAdmin(), nil, nil, Config{}, nil)
	require.NoError(t, b.Run(ctx))

	_, err = tenants.FindByTenantKey(ctx, "rms_template")
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
}
