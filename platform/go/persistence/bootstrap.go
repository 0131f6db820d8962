package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/rmsphere/control-plane/database"
	"github.com/rmsphere/control-plane/platform/go/migrate"
)

// BootstrapControlPlane applies the control-plane DDL (tenants directory,
// platforms catalog) in a single transaction. SQL is embedded at build time
// so binaries stay self-contained. The helper is idempotent and intended for
// CLI bootstrap and tests.
func BootstrapControlPlane(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap control plane: pool is required")
	}

	var statements []string
	statements = append(statements, migrate.SplitStatements(sqlassets.TenantsSQL)...)
	statements = append(statements, migrate.SplitStatements(sqlassets.PlatformsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}
