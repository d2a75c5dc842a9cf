package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "mt.db")

	database, err := Open(ctx, path)
	require.NoError(t, err)
	defer database.Close()

	var n int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_types`).Scan(&n))
	assert.Equal(t, 7, n)

	var fk int
	require.NoError(t, database.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, err := Open(ctx, filepath.Join(t.TempDir(), "mt.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(ctx, database))
	require.NoError(t, Migrate(ctx, database))
}

func TestMigrateWidensNarrowIssuesTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")
	database, err := Open(ctx, path)
	require.NoError(t, err)

	// Rebuild issues with only the core columns.
	_, err = database.ExecContext(ctx, `
		DROP TABLE issues;
		CREATE TABLE issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			content_type_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			priority TEXT NOT NULL DEFAULT 'medium',
			parent_id INTEGER,
			created_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			updated_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
		);
	`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	database, err = Open(ctx, path)
	require.NoError(t, err)
	defer database.Close()

	cols, err := tableColumns(ctx, database, "issues")
	require.NoError(t, err)
	for _, c := range optionalIssueColumns {
		assert.True(t, cols[c.name], c.name)
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2025-03-01 09:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), got)

	got, err = ParseTime("2025-03-01T09:30:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}
