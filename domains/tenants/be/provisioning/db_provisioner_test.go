package provisioning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
)

func dbReq(tenantKey string) service.DBProvisionRequest {
	return service.DBProvisionRequest{TenantKey: tenantKey}
}

// fakeAdmin records every administrative statement in execution order and
// keeps a minimal catalog of databases and roles.
type fakeAdmin struct {
	mu        sync.Mutex
	ops       []string
	databases map[string]bool
	roles     map[string]bool
	failOnSQL string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		databases: make(map[string]bool),
		roles:     make(map[string]bool),
	}
}

func (f *fakeAdmin) Exec(ctx context.Context, sql string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnSQL != "" && strings.Contains(sql, f.failOnSQL) {
		return fmt.Errorf("injected failure on %q", f.failOnSQL)
	}
	f.ops = append(f.ops, sql)
	switch {
	case strings.HasPrefix(sql, "CREATE DATABASE "):
		f.databases[strings.TrimPrefix(sql, "CREATE DATABASE ")] = true
	case strings.HasPrefix(sql, "DROP DATABASE "):
		delete(f.databases, strings.TrimPrefix(sql, "DROP DATABASE "))
	case strings.HasPrefix(sql, "CREATE USER "):
		name := strings.TrimPrefix(sql, "CREATE USER ")
		f.roles[strings.SplitN(name, " ", 2)[0]] = true
	case strings.HasPrefix(sql, "DROP USER "):
		delete(f.roles, strings.TrimPrefix(sql, "DROP USER "))
	}
	return nil
}

func (f *fakeAdmin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.databases[pgx.Identifier{name}.Sanitize()], nil
}

func (f *fakeAdmin) RoleExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[pgx.Identifier{name}.Sanitize()], nil
}

func (f *fakeAdmin) TerminateConnections(ctx context.Context, database string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "TERMINATE "+database)
	return nil
}

func (f *fakeAdmin) OpenDatabase(ctx context.Context, database string) (*pgx.Conn, error) {
	return nil, fmt.Errorf("fake admin cannot open database %s", database)
}

func (f *fakeAdmin) Host() string { return "db.internal" }
func (f *fakeAdmin) Port() uint16 { return 5432 }

var _ AdminChannel = (*fakeAdmin)(nil)

func opIndex(t *testing.T, ops []string, substr string) int {
	t.Helper()
	for i, op := range ops {
		if strings.Contains(op, substr) {
			return i
		}
	}
	t.Fatalf("operation containing %q not found in %v", substr, ops)
	return -1
}

func TestDBProvisionerRejectsExistingDatabase(t *testing.T) {
	admin := newFakeAdmin()
	admin.databases[pgx.Identifier{"rms_acme"}.Sanitize()] = true

	prov := NewDBProvisioner(admin, nil, nil)
	_, err := prov.Provision(context.Background(), dbReq("acme"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already provisioned")
	require.Empty(t, admin.ops)
}

func TestDBProvisionerRollsBackDatabaseWhenUserCreationFails(t *testing.T) {
	admin := newFakeAdmin()
	admin.failOnSQL = "CREATE USER"

	prov := NewDBProvisioner(admin, nil, nil)
	_, err := prov.Provision(context.Background(), dbReq("acme"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "create user")

	// Database was created, then rolled back; the user never existed so no
	// drop user runs.
	terminate := opIndex(t, admin.ops, "TERMINATE")
	dropDB := opIndex(t, admin.ops, "DROP DATABASE")
	require.Less(t, terminate, dropDB)
	for _, op := range admin.ops {
		require.NotContains(t, op, "DROP USER")
	}
	require.Empty(t, admin.databases)
}

func TestDBProvisionerRollbackOrderAfterGrantFailure(t *testing.T) {
	admin := newFakeAdmin()
	admin.failOnSQL = "GRANT ALL PRIVILEGES ON DATABASE"

	prov := NewDBProvisioner(admin, nil, nil)
	_, err := prov.Provision(context.Background(), dbReq("acme"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "apply grants")

	// Fixed dependency order: terminate, drop database, then drop user.
	terminate := opIndex(t, admin.ops, "TERMINATE")
	dropDB := opIndex(t, admin.ops, "DROP DATABASE")
	dropUser := opIndex(t, admin.ops, "DROP USER")
	require.Less(t, terminate, dropDB)
	require.Less(t, dropDB, dropUser)

	require.Empty(t, admin.databases)
	require.Empty(t, admin.roles)
}

func TestDBProvisionerDeprovision(t *testing.T) {
	admin := newFakeAdmin()
	admin.databases[pgx.Identifier{"rms_acme"}.Sanitize()] = true
	admin.roles[pgx.Identifier{"rms_acme_user"}.Sanitize()] = true

	prov := NewDBProvisioner(admin, nil, nil)
	require.NoError(t, prov.Deprovision(context.Background(), "acme"))

	terminate := opIndex(t, admin.ops, "TERMINATE")
	dropDB := opIndex(t, admin.ops, "DROP DATABASE")
	dropUser := opIndex(t, admin.ops, "DROP USER")
	require.Less(t, terminate, dropDB)
	require.Less(t, dropDB, dropUser)
}

func TestDBProvisionerDeprovisionIsIdempotent(t *testing.T) {
	admin := newFakeAdmin()
	prov := NewDBProvisioner(admin, nil, nil)
	require.NoError(t, prov.Deprovision(context.Background(), "ghost"))
	require.Empty(t, admin.ops)
}
