package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmsphere/control-plane/domains/platforms/be/service"
)

const platformColumns = `prefix, name, COALESCE(admin_conn_string, ''), database_initialized, active, created_at, updated_at`

// PostgresRepository implements the platform catalog on the control-plane
// database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("platform repository requires pool")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]service.Platform, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+platformColumns+" FROM platforms WHERE active ORDER BY prefix")
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	var out []service.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, prefix string) (service.Platform, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+platformColumns+" FROM platforms WHERE prefix = $1", prefix)
	if err != nil {
		return service.Platform{}, fmt.Errorf("get platform: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return service.Platform{}, err
		}
		return service.Platform{}, service.ErrNotFound
	}
	return scanPlatform(rows)
}

func (r *PostgresRepository) Save(ctx context.Context, p service.Platform) (service.Platform, error) {
	var adminConn *string
	if p.AdminConnString != "" {
		adminConn = &p.AdminConnString
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO platforms (prefix, name, admin_conn_string, database_initialized, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (prefix) DO UPDATE SET
			name = EXCLUDED.name,
			admin_conn_string = EXCLUDED.admin_conn_string,
			database_initialized = EXCLUDED.database_initialized,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		p.Prefix, p.Name, adminConn, p.DatabaseInitialized, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return service.Platform{}, fmt.Errorf("save platform: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) MarkInitialized(ctx context.Context, prefix string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE platforms SET database_initialized = TRUE, updated_at = now() WHERE prefix = $1", prefix)
	if err != nil {
		return fmt.Errorf("mark platform initialized: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func scanPlatform(row pgx.Row) (service.Platform, error) {
	var p service.Platform
	if err := row.Scan(&p.Prefix, &p.Name, &p.AdminConnString, &p.DatabaseInitialized, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return service.Platform{}, fmt.Errorf("scan platform: %w", err)
	}
	return p, nil
}

var _ service.Repository = (*PostgresRepository)(nil)
