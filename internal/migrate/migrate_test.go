package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/storefront-sync/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 4)

	for _, f := range files {
		b, err := fs.ReadFile(migrations.FS, f)
		require.NoError(t, err)
		body := string(b)
		require.Contains(t, body, "-- +goose Up", f)
		require.Contains(t, body, "-- +goose Down", f)
	}

	b, err := fs.ReadFile(migrations.FS, "00002_catalog.sql")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), "ON DELETE SET NULL"))
}
