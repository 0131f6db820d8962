package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SQLMigrator applies an embedded DDL script as the tenant's own database
// user, so every created object is owned by that user from the start.
type SQLMigrator struct {
	script string
}

// NewSQLMigrator wraps a DDL script as a Migrator.
func NewSQLMigrator(script string) *SQLMigrator {
	return &SQLMigrator{script: script}
}

func (m *SQLMigrator) ApplyDeclarativeSchema(ctx context.Context, tenantKey, connString, username, password string) error {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parse tenant conn string: %w", err)
	}
	cfg.User = username
	cfg.Password = password

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect tenant database %s: %w", tenantKey, err)
	}
	defer conn.Close(ctx) // nolint:errcheck

	for _, stmt := range SplitStatements(m.script) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply declarative ddl: %w", err)
		}
	}
	return nil
}

var _ Migrator = (*SQLMigrator)(nil)
