package tenant

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlassets "github.com/rmsphere/control-plane/database"
	"github.com/rmsphere/control-plane/domains/tenants/be/provisioning"
	tenantsrepo "github.com/rmsphere/control-plane/domains/tenants/be/repo"
	tenantsservice "github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/identity"
	platformlogging "github.com/rmsphere/control-plane/platform/go/logging"
	"github.com/rmsphere/control-plane/platform/go/migrate"
	"github.com/rmsphere/control-plane/platform/go/persistence"
)

// Command groups tenant lifecycle operations.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle operations (create, delete)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	cmd.AddCommand(applySchemaCommand())
	return cmd
}

// connectionFlags are shared by every tenant subcommand.
type connectionFlags struct {
	databaseURL          string
	adminDatabaseURL     string
	identityBaseURL      string
	identityRealm        string
	identityClientID     string
	identityClientSecret string
	baseDomain           string
	logLevel             string
}

func (f *connectionFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "control-plane database connection string")
	c.Flags().StringVar(&f.adminDatabaseURL, "admin-database-url", os.Getenv("ADMIN_DATABASE_URL"), "maintenance connection with CREATEDB/CREATEROLE privileges")
	c.Flags().StringVar(&f.identityBaseURL, "identity-url", os.Getenv("IDENTITY_BASE_URL"), "identity provider base URL")
	c.Flags().StringVar(&f.identityRealm, "identity-admin-realm", "master", "identity admin realm")
	c.Flags().StringVar(&f.identityClientID, "identity-client-id", os.Getenv("IDENTITY_ADMIN_CLIENT_ID"), "identity admin client id")
	c.Flags().StringVar(&f.identityClientSecret, "identity-client-secret", os.Getenv("IDENTITY_ADMIN_CLIENT_SECRET"), "identity admin client secret")
	c.Flags().StringVar(&f.baseDomain, "base-domain", "rmsphere.io", "base domain for tenant redirect URIs")
	c.Flags().StringVar(&f.logLevel, "log-level", "info", "log level")
}

func (f *connectionFlags) validate() error {
	if f.databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	if f.adminDatabaseURL == "" {
		return fmt.Errorf("--admin-database-url or ADMIN_DATABASE_URL is required")
	}
	if f.identityBaseURL == "" {
		return fmt.Errorf("--identity-url or IDENTITY_BASE_URL is required")
	}
	return nil
}

// buildService wires the full provisioning stack. The returned cleanup must
// run before process exit.
func (f *connectionFlags) buildService(ctx context.Context) (*tenantsservice.Service, *zap.Logger, func(), error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "rmsctl-tenant",
		Level:     f.logLevel,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init control-plane pool: %w", err)
	}

	adminDB, err := persistence.NewAdminDB(ctx, persistence.AdminDBConfig{ConnString: f.adminDatabaseURL})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, nil, fmt.Errorf("init admin database channel: %w", err)
	}

	identityAdmin, err := identity.NewAdmin(ctx, identity.AdminConfig{
		BaseURL:      f.identityBaseURL,
		AdminRealm:   f.identityRealm,
		ClientID:     f.identityClientID,
		ClientSecret: f.identityClientSecret,
	})
	if err != nil {
		adminDB.Close()
		persistence.ClosePool(pool)
		return nil, nil, nil, fmt.Errorf("init identity admin client: %w", err)
	}

	dbProv := provisioning.NewDBProvisioner(adminDB, migrate.NewSQLMigrator(sqlassets.FullSchemaSQL), logger)
	realmProv := provisioning.NewRealmProvisioner(identityAdmin, provisioning.RealmProvisionerConfig{
		BaseDomain: f.baseDomain,
	}, logger)

	svc := tenantsservice.New(tenantsrepo.NewPostgresDirectory(pool), dbProv, realmProv, nil, logger)
	cleanup := func() {
		adminDB.Close()
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}
	return svc, logger, cleanup, nil
}

func createCommand() *cobra.Command {
	var (
		flags       connectionFlags
		tenantKey   string
		tenantID    string
		name        string
		subdomain   string
		applySchema bool
		isTemplate  bool
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant: database, identity realm and directory record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := flags.validate(); err != nil {
				return err
			}
			if tenantKey == "" {
				return fmt.Errorf("--key is required")
			}

			svc, logger, cleanup, err := flags.buildService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := svc.Create(ctx, tenantsservice.CreateInput{
				TenantKey:      tenantKey,
				TenantID:       tenantID,
				Name:           name,
				Subdomain:      subdomain,
				ApplySchemaNow: applySchema,
				IsTemplate:     isTemplate,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			logger.Info("tenant provisioned",
				zap.String("tenant_key", t.TenantKey),
				zap.String("database", t.DBName),
				zap.String("realm", t.RealmName))
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s created (database %s, realm %s)\n",
				t.TenantKey, t.DBName, t.RealmName)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantKey, "key", "", "immutable tenant key")
	c.Flags().StringVar(&tenantID, "id", "", "runtime tenant id (defaults to the key)")
	c.Flags().StringVar(&name, "name", "", "display name")
	c.Flags().StringVar(&subdomain, "subdomain", "", "subdomain used for host-based resolution")
	c.Flags().BoolVar(&applySchema, "apply-schema", false, "apply the full declarative schema during creation")
	c.Flags().BoolVar(&isTemplate, "template", false, "mark the tenant as a template")
	return c
}

func deleteCommand() *cobra.Command {
	var (
		flags     connectionFlags
		tenantKey string
	)

	c := &cobra.Command{
		Use:   "delete",
		Short: "Deprovision a tenant: realm, database and user; soft-delete the record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := flags.validate(); err != nil {
				return err
			}
			if tenantKey == "" {
				return fmt.Errorf("--key is required")
			}

			svc, _, cleanup, err := flags.buildService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Delete(ctx, tenantKey); err != nil {
				return fmt.Errorf("delete tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s deleted\n", tenantKey)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantKey, "key", "", "immutable tenant key")
	return c
}

func applySchemaCommand() *cobra.Command {
	var (
		flags     connectionFlags
		tenantKey string
	)

	c := &cobra.Command{
		Use:   "apply-schema",
		Short: "Re-apply the full declarative schema to an existing tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := flags.validate(); err != nil {
				return err
			}
			if tenantKey == "" {
				return fmt.Errorf("--key is required")
			}

			svc, _, cleanup, err := flags.buildService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.ApplySchema(ctx, tenantKey); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied for tenant %s\n", tenantKey)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantKey, "key", "", "immutable tenant key")
	return c
}
