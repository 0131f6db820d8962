// Package pgtest provisions throwaway Postgres databases for integration
// tests. TEST_DATABASE_URL takes precedence; otherwise a disposable
// container is started, and the test is skipped when neither is available.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// URL returns a connection string to a Postgres instance usable for the
// duration of the test.
func URL(t *testing.T) string {
	t.Helper()

	if url, ok := os.LookupEnv("TEST_DATABASE_URL"); ok && url != "" {
		return url
	}

	ctx := context.Background()
	container, err := startContainer(ctx)
	if err != nil {
		t.Skipf("no TEST_DATABASE_URL and no container runtime: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}
	return url
}

// startContainer converts testcontainers panics on machines without a
// container runtime (docker host detection panics before Run can return an
// error) into a plain error so callers skip instead of failing.
func startContainer(ctx context.Context) (container *postgres.PostgresContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			container, err = nil, fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()

	return postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("controlplane_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
}

// MustPool opens a pool against a test database and closes it when the test
// finishes.
func MustPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), URL(t))
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
