package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/migrate"
)

// AdminChannel is the synchronous administrative SQL capability the database
// saga needs. Implemented by persistence.AdminDB.
type AdminChannel interface {
	Exec(ctx context.Context, sql string, args ...any) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	TerminateConnections(ctx context.Context, database string) error
	OpenDatabase(ctx context.Context, database string) (*pgx.Conn, error)
	Host() string
	Port() uint16
}

// DBProvisioner runs the database saga: create database, dedicated user,
// grants and initial schema, with compensating rollback on step failure.
type DBProvisioner struct {
	admin    AdminChannel
	migrator migrate.Migrator
	logger   *zap.Logger
}

// NewDBProvisioner constructs the database saga runner. migrator may be nil
// when no declarative schema collaborator is configured; creation then
// always installs the baseline set.
func NewDBProvisioner(admin AdminChannel, migrator migrate.Migrator, logger *zap.Logger) *DBProvisioner {
	if admin == nil {
		panic("db provisioner requires admin channel")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{admin: admin, migrator: migrator, logger: logger}
}

// Provision executes the ordered database saga. A duplicate database is an
// error before any step runs, never a no-op; failure at any later step rolls
// back everything completed so far and surfaces the original cause.
func (p *DBProvisioner) Provision(ctx context.Context, req service.DBProvisionRequest) (service.DBProvisionResult, error) {
	dbName := service.DatabaseNameFor(req.TenantKey)
	userName := service.DatabaseUserFor(req.TenantKey)

	if exists, err := p.admin.DatabaseExists(ctx, dbName); err != nil {
		return service.DBProvisionResult{}, fmt.Errorf("precheck database: %w", err)
	} else if exists {
		return service.DBProvisionResult{}, fmt.Errorf("database %s already provisioned", dbName)
	}

	password, err := generatePassword()
	if err != nil {
		return service.DBProvisionResult{}, fmt.Errorf("generate password: %w", err)
	}

	saga := NewSaga("database", p.logger.With(zap.String("tenant_key", req.TenantKey)))

	// Step 1: create database. Failing here needs no rollback.
	if err := p.admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		return service.DBProvisionResult{}, saga.Fail(fmt.Errorf("create database: %w", err))
	}
	saga.Mark(StepDatabaseCreated)

	// Step 2: dedicated database user with a fresh password.
	createUser := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s",
		pgx.Identifier{userName}.Sanitize(), quoteLiteral(password))
	if err := p.admin.Exec(ctx, createUser); err != nil {
		p.rollback(ctx, saga, dbName, userName)
		return service.DBProvisionResult{}, saga.Fail(fmt.Errorf("create user: %w", err))
	}
	saga.Mark(StepUserCreated)

	// Step 3: privileges, including default privileges on future objects so
	// tables created later by schema migration stay accessible.
	if err := p.applyGrants(ctx, dbName, userName); err != nil {
		p.rollback(ctx, saga, dbName, userName)
		return service.DBProvisionResult{}, saga.Fail(fmt.Errorf("apply grants: %w", err))
	}
	saga.Mark(StepGrantsApplied)

	// Step 4: initial schema.
	if err := p.initializeSchema(ctx, req, dbName, userName, password); err != nil {
		p.rollback(ctx, saga, dbName, userName)
		return service.DBProvisionResult{}, saga.Fail(fmt.Errorf("initialize schema: %w", err))
	}
	saga.Mark(StepSchemaApplied)

	return service.DBProvisionResult{
		Host:     p.admin.Host(),
		Port:     p.admin.Port(),
		Database: dbName,
		Username: userName,
		Password: password,
		Schema:   "public",
	}, nil
}

// ApplySchema re-applies the declarative schema to an existing tenant
// database. Unlike creation there is no baseline fallback: a migration
// failure surfaces to the caller unchanged.
func (p *DBProvisioner) ApplySchema(ctx context.Context, tenantKey string, coords service.DBProvisionResult) error {
	if p.migrator == nil {
		return fmt.Errorf("no schema migrator configured")
	}
	connString := fmt.Sprintf("postgres://%s:%d/%s", coords.Host, coords.Port, coords.Database)
	if err := p.migrator.ApplyDeclarativeSchema(ctx, tenantKey, connString, coords.Username, coords.Password); err != nil {
		return fmt.Errorf("apply declarative schema: %w", err)
	}
	p.logger.Info("declarative schema applied",
		zap.String("tenant_key", tenantKey), zap.String("database", coords.Database))
	return nil
}

// Deprovision hard-deletes the tenant's database and user: terminate
// connections, drop database, drop user, in that order.
func (p *DBProvisioner) Deprovision(ctx context.Context, tenantKey string) error {
	dbName := service.DatabaseNameFor(tenantKey)
	userName := service.DatabaseUserFor(tenantKey)

	if exists, err := p.admin.DatabaseExists(ctx, dbName); err != nil {
		return fmt.Errorf("check database: %w", err)
	} else if exists {
		if err := p.admin.TerminateConnections(ctx, dbName); err != nil {
			return err
		}
		if err := p.admin.Exec(ctx, "DROP DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
			return fmt.Errorf("drop database: %w", err)
		}
	}

	if exists, err := p.admin.RoleExists(ctx, userName); err != nil {
		return fmt.Errorf("check role: %w", err)
	} else if exists {
		if err := p.admin.Exec(ctx, "DROP USER "+pgx.Identifier{userName}.Sanitize()); err != nil {
			return fmt.Errorf("drop user: %w", err)
		}
	}

	return nil
}

// rollback compensates the completed steps. Order is fixed by dependency:
// connections terminated before the database is dropped, database dropped
// before the user (default privileges make the user a dependency of the
// database's objects). Failures are logged, never propagated.
func (p *DBProvisioner) rollback(ctx context.Context, saga *Saga, dbName, userName string) {
	if saga.Done(StepDatabaseCreated) {
		saga.Compensate(ctx, "terminate connections", func(ctx context.Context) error {
			return p.admin.TerminateConnections(ctx, dbName)
		})
		saga.Compensate(ctx, "drop database", func(ctx context.Context) error {
			return p.admin.Exec(ctx, "DROP DATABASE "+pgx.Identifier{dbName}.Sanitize())
		})
	}
	if saga.Done(StepUserCreated) {
		saga.Compensate(ctx, "drop user", func(ctx context.Context) error {
			return p.admin.Exec(ctx, "DROP USER "+pgx.Identifier{userName}.Sanitize())
		})
	}
}

func (p *DBProvisioner) applyGrants(ctx context.Context, dbName, userName string) error {
	grantDB := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s",
		pgx.Identifier{dbName}.Sanitize(), pgx.Identifier{userName}.Sanitize())
	if err := p.admin.Exec(ctx, grantDB); err != nil {
		return fmt.Errorf("grant database: %w", err)
	}

	// Schema-level grants must run inside the new database.
	conn, err := p.admin.OpenDatabase(ctx, dbName)
	if err != nil {
		return err
	}
	defer conn.Close(ctx) // nolint:errcheck

	statements := []string{
		fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", pgx.Identifier{userName}.Sanitize()),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO %s", pgx.Identifier{userName}.Sanitize()),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO %s", pgx.Identifier{userName}.Sanitize()),
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema grant: %w", err)
		}
	}
	return nil
}

func (p *DBProvisioner) initializeSchema(ctx context.Context, req service.DBProvisionRequest, dbName, userName, password string) error {
	if req.ApplySchemaNow && p.migrator != nil {
		connString := fmt.Sprintf("postgres://%s:%d/%s", p.admin.Host(), p.admin.Port(), dbName)
		err := p.migrator.ApplyDeclarativeSchema(ctx, req.TenantKey, connString, userName, password)
		if err == nil {
			return nil
		}
		// Recoverable only during creation: fall back to the baseline set.
		p.logger.Warn("declarative schema failed, falling back to baseline",
			zap.String("database", dbName), zap.Error(err))
	}

	conn, err := p.admin.OpenDatabase(ctx, dbName)
	if err != nil {
		return err
	}
	defer conn.Close(ctx) // nolint:errcheck

	if err := migrate.ApplyBaseline(ctx, conn); err != nil {
		return err
	}

	// Baseline objects were created by the admin account; hand them to the
	// tenant user explicitly.
	statements := []string{
		fmt.Sprintf("GRANT ALL ON ALL TABLES IN SCHEMA public TO %s", pgx.Identifier{userName}.Sanitize()),
		fmt.Sprintf("GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO %s", pgx.Identifier{userName}.Sanitize()),
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("baseline grant: %w", err)
		}
	}
	return nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// quoteLiteral renders s as a single-quoted SQL string literal. Identifiers
// go through pgx.Identifier; this is only for the generated password, which
// cannot be parameterized in CREATE USER.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ service.DatabaseProvisioner = (*DBProvisioner)(nil)
