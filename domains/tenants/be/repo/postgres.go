package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
)

const tenantColumns = `tenant_key, tenant_id, name, COALESCE(subdomain, ''),
	db_host, db_port, db_name, db_username, db_password, db_schema,
	realm_name, client_id, client_secret, default_roles,
	active, is_template, created_at, updated_at`

// PostgresDirectory implements the tenant directory on the control-plane
// database.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs a directory backed by the given pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("tenant directory requires pool")
	}
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) FindByTenantKey(ctx context.Context, tenantKey string) (service.Tenant, error) {
	return d.findOne(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE tenant_key = $1", tenantKey)
}

func (d *PostgresDirectory) FindActiveByTenantID(ctx context.Context, tenantID string) (service.Tenant, error) {
	return d.findOne(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE tenant_id = $1 AND active", tenantID)
}

func (d *PostgresDirectory) FindActiveBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	return d.findOne(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE subdomain = $1 AND active", subdomain)
}

func (d *PostgresDirectory) ExistsByTenantKey(ctx context.Context, tenantKey string) (bool, error) {
	return d.exists(ctx, "SELECT EXISTS (SELECT 1 FROM tenants WHERE tenant_key = $1 AND active)", tenantKey)
}

func (d *PostgresDirectory) ExistsByTenantID(ctx context.Context, tenantID string) (bool, error) {
	return d.exists(ctx, "SELECT EXISTS (SELECT 1 FROM tenants WHERE tenant_id = $1 AND active)", tenantID)
}

func (d *PostgresDirectory) Save(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	var subdomain *string
	if t.Subdomain != "" {
		subdomain = &t.Subdomain
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO tenants (
			tenant_key, tenant_id, name, subdomain,
			db_host, db_port, db_name, db_username, db_password, db_schema,
			realm_name, client_id, client_secret, default_roles,
			active, is_template, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (tenant_key) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			subdomain = EXCLUDED.subdomain,
			db_host = EXCLUDED.db_host,
			db_port = EXCLUDED.db_port,
			db_name = EXCLUDED.db_name,
			db_username = EXCLUDED.db_username,
			db_password = EXCLUDED.db_password,
			db_schema = EXCLUDED.db_schema,
			realm_name = EXCLUDED.realm_name,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			default_roles = EXCLUDED.default_roles,
			active = EXCLUDED.active,
			is_template = EXCLUDED.is_template,
			updated_at = EXCLUDED.updated_at`,
		t.TenantKey, t.TenantID, t.Name, subdomain,
		t.DBHost, int32(t.DBPort), t.DBName, t.DBUsername, t.DBPassword, t.DBSchema,
		t.RealmName, t.ClientID, t.ClientSecret, t.DefaultRoles,
		t.Active, t.IsTemplate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return service.Tenant{}, mapConflict(err)
	}
	return t, nil
}

func (d *PostgresDirectory) List(ctx context.Context) ([]service.Tenant, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+tenantColumns+" FROM tenants ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []service.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) findOne(ctx context.Context, query string, arg any) (service.Tenant, error) {
	rows, err := d.pool.Query(ctx, query, arg)
	if err != nil {
		return service.Tenant{}, fmt.Errorf("query tenant: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return service.Tenant{}, err
		}
		return service.Tenant{}, service.ErrNotFound
	}
	return scanTenant(rows)
}

func (d *PostgresDirectory) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := d.pool.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return exists, nil
}

func scanTenant(row pgx.Row) (service.Tenant, error) {
	var t service.Tenant
	var port int32
	err := row.Scan(
		&t.TenantKey, &t.TenantID, &t.Name, &t.Subdomain,
		&t.DBHost, &port, &t.DBName, &t.DBUsername, &t.DBPassword, &t.DBSchema,
		&t.RealmName, &t.ClientID, &t.ClientSecret, &t.DefaultRoles,
		&t.Active, &t.IsTemplate, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return service.Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	t.DBPort = uint16(port)
	return t, nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", service.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

var _ service.Directory = (*PostgresDirectory)(nil)
