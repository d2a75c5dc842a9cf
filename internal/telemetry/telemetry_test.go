package telemetry_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/issues"
	"github.com/satyaki-up/matorral/internal/telemetry"
)

func newService(t *testing.T) *issues.Service {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return issues.NewService(database)
}

func TestWrapStoreDisabledReturnsStore(t *testing.T) {
	require.NoError(t, telemetry.Init(context.Background(), telemetry.Options{}, "mt", "test"))
	svc := newService(t)

	assert.False(t, telemetry.Enabled())
	assert.Same(t, svc, telemetry.WrapStore(svc))
}

func TestWrapStoreEnabledExportsSpans(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, telemetry.Init(ctx, telemetry.Options{Enabled: true, Writer: &out}, "mt", "test"))
	t.Cleanup(func() {
		telemetry.Shutdown(ctx)
		_ = telemetry.Init(ctx, telemetry.Options{}, "mt", "test")
	})

	svc := newService(t)
	ws, err := svc.CreateWorkspace(ctx, "acme", "Acme")
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, ws.ID, "OPS", "Operations")
	require.NoError(t, err)

	store := telemetry.WrapStore(svc)
	_, ok := store.(*telemetry.InstrumentedStore)
	require.True(t, ok)

	got, err := store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = store.GetIssue(ctx, 404)
	require.ErrorIs(t, err, issues.ErrNotFound)

	telemetry.Shutdown(ctx)
	assert.Contains(t, out.String(), "store.GetProject")
	assert.Contains(t, out.String(), "store.GetIssue")
}
