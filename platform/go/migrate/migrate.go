// Package migrate defines the declarative schema-change collaborator
// consumed by tenant provisioning, plus the embedded baseline applier used
// as its fallback.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	sqlassets "github.com/rmsphere/control-plane/database"
)

// Migrator applies the full declarative schema to a tenant database. The
// implementation is opaque to provisioning; during tenant creation its
// failure is recoverable (the baseline set is applied instead), during a
// standalone re-apply it is not.
type Migrator interface {
	ApplyDeclarativeSchema(ctx context.Context, tenantKey, connString, username, password string) error
}

// ApplyBaseline creates the minimal baseline table set on an open tenant
// database connection.
func ApplyBaseline(ctx context.Context, conn *pgx.Conn) error {
	for _, stmt := range SplitStatements(sqlassets.BaselineSQL) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply baseline ddl: %w", err)
		}
	}
	return nil
}

// SplitStatements splits an embedded SQL asset into individual statements.
// Good enough for our DDL files: no string literals containing semicolons.
func SplitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
