package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduling.db")

	conn, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer conn.Close()

	var n int
	err = conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('appointments', 'event_logs')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduling.db")

	first, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSQLiteDSNUsesImmediateTransactions(t *testing.T) {
	dsn := sqliteDSN("/tmp/x.db")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout")
}
