package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/persistence"
	"github.com/rmsphere/control-plane/platform/go/persistence/pgtest"
)

func newPostgresDirectory(t *testing.T) *PostgresDirectory {
	t.Helper()
	ctx := context.Background()
	pool := pgtest.MustPool(t)
	require.NoError(t, persistence.BootstrapControlPlane(ctx, pool))
	_, err := pool.Exec(ctx, "TRUNCATE tenants")
	require.NoError(t, err)
	return NewPostgresDirectory(pool)
}

func fixtureTenant(key string) service.Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return service.Tenant{
		TenantKey: key,
		TenantID:  key,
		Name:      "Tenant " + key,
		Subdomain: key,

		DBHost:     "db.internal",
		DBPort:     5432,
		DBName:     service.DatabaseNameFor(key),
		DBUsername: service.DatabaseUserFor(key),
		DBPassword: "s3cret",
		DBSchema:   "public",

		RealmName:    service.RealmNameFor(key),
		ClientID:     service.WebClientIDFor(key),
		ClientSecret: "web-secret",
		DefaultRoles: "admin,manager",

		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresDirectoryRoundTrip(t *testing.T) {
	dir := newPostgresDirectory(t)
	ctx := context.Background()

	want := fixtureTenant("acme")
	_, err := dir.Save(ctx, want)
	require.NoError(t, err)

	got, err := dir.FindByTenantKey(ctx, "acme")
	require.NoError(t, err)
	require.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
	require.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Second)
	got.CreatedAt, got.UpdatedAt = want.CreatedAt, want.UpdatedAt
	require.Equal(t, want, got)

	got, err = dir.FindActiveByTenantID(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, want.DBName, got.DBName)

	got, err = dir.FindActiveBySubdomain(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, want.TenantID, got.TenantID)

	_, err = dir.FindByTenantKey(ctx, "ghost")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestPostgresDirectoryUpsertsByKey(t *testing.T) {
	dir := newPostgresDirectory(t)
	ctx := context.Background()

	fixture := fixtureTenant("acme")
	_, err := dir.Save(ctx, fixture)
	require.NoError(t, err)

	fixture.Name = "Acme Holdings"
	fixture.UpdatedAt = fixture.UpdatedAt.Add(time.Minute)
	_, err = dir.Save(ctx, fixture)
	require.NoError(t, err)

	got, err := dir.FindByTenantKey(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme Holdings", got.Name)

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPostgresDirectoryDeactivationHidesActiveLookups(t *testing.T) {
	dir := newPostgresDirectory(t)
	ctx := context.Background()

	fixture := fixtureTenant("acme")
	_, err := dir.Save(ctx, fixture)
	require.NoError(t, err)

	fixture.Active = false
	_, err = dir.Save(ctx, fixture)
	require.NoError(t, err)

	_, err = dir.FindActiveByTenantID(ctx, "acme")
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = dir.FindActiveBySubdomain(ctx, "acme")
	require.ErrorIs(t, err, service.ErrNotFound)

	exists, err := dir.ExistsByTenantKey(ctx, "acme")
	require.NoError(t, err)
	require.False(t, exists)

	// The record itself survives for audit and reactivation.
	got, err := dir.FindByTenantKey(ctx, "acme")
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestPostgresDirectoryListOrdersByCreation(t *testing.T) {
	dir := newPostgresDirectory(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, key := range []string{"gamma", "alpha", "beta"} {
		fixture := fixtureTenant(key)
		fixture.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := dir.Save(ctx, fixture)
		require.NoError(t, err)
	}

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	keys := make([]string, 0, len(list))
	for _, item := range list {
		keys = append(keys, item.TenantKey)
	}
	require.Equal(t, []string{"gamma", "alpha", "beta"}, keys)
}

func TestPostgresDirectoryExistenceChecks(t *testing.T) {
	dir := newPostgresDirectory(t)
	ctx := context.Background()

	_, err := dir.Save(ctx, fixtureTenant("acme"))
	require.NoError(t, err)

	for i, check := range []func(context.Context, string) (bool, error){
		dir.ExistsByTenantKey, dir.ExistsByTenantID,
	} {
		exists, err := check(ctx, "acme")
		require.NoError(t, err, fmt.Sprintf("check %d", i))
		require.True(t, exists)

		exists, err = check(ctx, "ghost")
		require.NoError(t, err)
		require.False(t, exists)
	}
}
