package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmsphere/control-plane/domains/platforms/be/service"
	"github.com/rmsphere/control-plane/platform/go/persistence"
	"github.com/rmsphere/control-plane/platform/go/persistence/pgtest"
)

func newPostgresRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()
	pool := pgtest.MustPool(t)
	require.NoError(t, persistence.BootstrapControlPlane(ctx, pool))
	_, err := pool.Exec(ctx, "TRUNCATE platforms")
	require.NoError(t, err)
	return NewPostgresRepository(pool)
}

func fixturePlatform(prefix string) service.Platform {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return service.Platform{
		Prefix:    prefix,
		Name:      "Platform " + prefix,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()

	want := fixturePlatform("rms")
	want.AdminConnString = "postgres://admin@db.internal:5432/postgres"
	_, err := repo.Save(ctx, want)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "rms")
	require.NoError(t, err)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.AdminConnString, got.AdminConnString)
	require.True(t, got.Active)
	require.False(t, got.DatabaseInitialized)

	_, err = repo.Get(ctx, "ghost")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestPostgresRepositoryListActiveFiltersAndSorts(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()

	for _, prefix := range []string{"zeta", "alpha"} {
		_, err := repo.Save(ctx, fixturePlatform(prefix))
		require.NoError(t, err)
	}
	inactive := fixturePlatform("gone")
	inactive.Active = false
	_, err := repo.Save(ctx, inactive)
	require.NoError(t, err)

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alpha", list[0].Prefix)
	require.Equal(t, "zeta", list[1].Prefix)
}

func TestPostgresRepositoryMarkInitialized(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, fixturePlatform("rms"))
	require.NoError(t, err)

	require.NoError(t, repo.MarkInitialized(ctx, "rms"))

	got, err := repo.Get(ctx, "rms")
	require.NoError(t, err)
	require.True(t, got.DatabaseInitialized)

	require.ErrorIs(t, repo.MarkInitialized(ctx, "ghost"), service.ErrNotFound)
}
