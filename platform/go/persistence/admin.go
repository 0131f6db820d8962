package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminDB is the synchronous administrative SQL channel used by provisioning.
// It executes raw statements (CREATE DATABASE/USER, GRANT, DROP) against the
// maintenance database and can open a connection scoped to any named database
// on the same server. Every statement carries a short timeout so a wedged
// server fails the saga instead of hanging it.
type AdminDB struct {
	pool        *pgxpool.Pool
	baseConfig  *pgx.ConnConfig
	stmtTimeout time.Duration
}

// AdminDBConfig configures the admin channel.
type AdminDBConfig struct {
	// ConnString points at the maintenance database with a superuser or
	// CREATEDB/CREATEROLE-capable account.
	ConnString string
	// StatementTimeout bounds each administrative statement (default 15s).
	StatementTimeout time.Duration
}

// NewAdminDB connects the administrative channel and verifies connectivity.
func NewAdminDB(ctx context.Context, cfg AdminDBConfig) (*AdminDB, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("admin conn string is required")
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 15 * time.Second
	}

	baseConfig, err := pgx.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse admin conn config: %w", err)
	}

	pool, err := NewPool(ctx, PoolConfig{ConnString: cfg.ConnString, MaxConns: 2})
	if err != nil {
		return nil, fmt.Errorf("connect admin database: %w", err)
	}

	return &AdminDB{pool: pool, baseConfig: baseConfig, stmtTimeout: cfg.StatementTimeout}, nil
}

// Host returns the configured server host. First-class accessor so callers
// never need to introspect the underlying driver configuration.
func (a *AdminDB) Host() string { return a.baseConfig.Host }

// Port returns the configured server port.
func (a *AdminDB) Port() uint16 { return a.baseConfig.Port }

// Username returns the administrative account name.
func (a *AdminDB) Username() string { return a.baseConfig.User }

// Exec runs one administrative statement with the configured timeout.
func (a *AdminDB) Exec(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, a.stmtTimeout)
	defer cancel()

	if _, err := a.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("admin exec: %w", err)
	}
	return nil
}

// DatabaseExists reports whether a database with the given name exists.
func (a *AdminDB) DatabaseExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.stmtTimeout)
	defer cancel()

	var exists bool
	err := a.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database existence: %w", err)
	}
	return exists, nil
}

// RoleExists reports whether a role with the given name exists.
func (a *AdminDB) RoleExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.stmtTimeout)
	defer cancel()

	var exists bool
	err := a.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role existence: %w", err)
	}
	return exists, nil
}

// TerminateConnections kills every backend attached to the named database.
// Used before DROP DATABASE during saga rollback.
func (a *AdminDB) TerminateConnections(ctx context.Context, database string) error {
	ctx, cancel := context.WithTimeout(ctx, a.stmtTimeout)
	defer cancel()

	_, err := a.pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`, database)
	if err != nil {
		return fmt.Errorf("terminate connections: %w", err)
	}
	return nil
}

// OpenDatabase opens a single connection scoped to the named database on the
// same server, using the administrative credentials. The caller owns the
// connection and must close it.
func (a *AdminDB) OpenDatabase(ctx context.Context, database string) (*pgx.Conn, error) {
	cfg := a.baseConfig.Copy()
	cfg.Database = database

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", database, err)
	}
	return conn, nil
}

// Close releases the administrative pool.
func (a *AdminDB) Close() {
	ClosePool(a.pool)
}
