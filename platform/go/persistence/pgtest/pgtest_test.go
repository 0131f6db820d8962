package pgtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Machines without TEST_DATABASE_URL or a container runtime must skip here,
// never panic or fail.
func TestMustPoolProvidesReachableDatabase(t *testing.T) {
	pool := MustPool(t)

	require.NoError(t, pool.Ping(context.Background()))
}
