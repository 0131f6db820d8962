package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sqlassets "github.com/rmsphere/control-plane/database"
	platformbootstrap "github.com/rmsphere/control-plane/domains/platforms/be/bootstrap"
	platformsrepo "github.com/rmsphere/control-plane/domains/platforms/be/repo"
	"github.com/rmsphere/control-plane/domains/tenants/be/provisioning"
	tenantsrepo "github.com/rmsphere/control-plane/domains/tenants/be/repo"
	platformlogging "github.com/rmsphere/control-plane/platform/go/logging"
	"github.com/rmsphere/control-plane/platform/go/migrate"
	"github.com/rmsphere/control-plane/platform/go/persistence"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (template/default databases and tenants)",
	}

	cmd.AddCommand(platformCommand())
	return cmd
}

func platformCommand() *cobra.Command {
	var (
		databaseURL      string
		adminDatabaseURL string
		logLevel         string
		seedDemo         bool
	)

	c := &cobra.Command{
		Use:   "platform",
		Short: "Initialize every active platform not yet bootstrapped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if adminDatabaseURL == "" {
				return fmt.Errorf("--admin-database-url or ADMIN_DATABASE_URL is required")
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{
				Component: "rmsctl-bootstrap",
				Level:     logLevel,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init control-plane pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapControlPlane(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap control-plane schema: %w", err)
			}

			adminDB, err := persistence.NewAdminDB(ctx, persistence.AdminDBConfig{ConnString: adminDatabaseURL})
			if err != nil {
				return fmt.Errorf("init admin database channel: %w", err)
			}
			defer adminDB.Close()

			connect := func(ctx context.Context, connString string) (provisioning.AdminChannel, error) {
				return persistence.NewAdminDB(ctx, persistence.AdminDBConfig{ConnString: connString})
			}

			runner := platformbootstrap.New(
				platformsrepo.NewPostgresRepository(pool),
				tenantsrepo.NewPostgresDirectory(pool),
				adminDB,
				connect,
				migrate.NewSQLMigrator(sqlassets.FullSchemaSQL),
				platformbootstrap.Config{SeedDemoRows: seedDemo},
				logger,
			)
			return runner.Run(ctx)
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "control-plane database connection string")
	c.Flags().StringVar(&adminDatabaseURL, "admin-database-url", os.Getenv("ADMIN_DATABASE_URL"), "maintenance connection with CREATEDB/CREATEROLE privileges")
	c.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	c.Flags().BoolVar(&seedDemo, "seed-demo", false, "seed demo rows into freshly created databases")
	return c
}
