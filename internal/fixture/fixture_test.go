package fixture_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/fixture"
	"github.com/satyaki-up/matorral/internal/issues"
)

const sample = `
workspace: acme
projects:
  - key: CORE
    name: Core platform
    status: active
    milestones:
      - title: Launch
        status: planning
        epics:
          - title: Checkout
            status: in_progress
            items:
              - type: story
                title: Cart
                points: 3
                subtasks:
                  - title: Totals
                  - title: Taxes
                    status: done
              - type: bug
                title: Rounding
                status: done
    epics:
      - title: Ops
    items:
      - type: chore
        title: Bump deps
`

func newService(t *testing.T) *issues.Service {
	t.Helper()
	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "fixture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return issues.NewService(database)
}

func TestImportBuildsTree(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	f, err := fixture.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	sum, err := fixture.Import(ctx, svc, f, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "acme", sum.Workspace.Slug)
	require.Len(t, sum.Projects, 1)
	assert.Equal(t, issues.ProjectActive, sum.Projects[0].Status)
	assert.Equal(t, 1, sum.Milestones)
	assert.Equal(t, 2, sum.Epics)
	assert.Equal(t, 3, sum.Items)
	assert.Equal(t, 2, sum.Subtasks)

	tree, err := svc.Tree(ctx, sum.Projects[0].ID)
	require.NoError(t, err)
	require.Len(t, tree, 3, "milestone, orphan epic, root chore")

	milestone := tree[0]
	assert.Equal(t, "[M-1] Launch", milestone.Entity.String())
	require.Len(t, milestone.Children, 1)
	checkout := milestone.Children[0]
	require.Len(t, checkout.Children, 2)
	require.NotNil(t, checkout.Progress)
	assert.Equal(t, 4, checkout.Progress.TotalWeight)
	assert.Equal(t, 1, checkout.Progress.DoneWeight)
	assert.Len(t, checkout.Children[0].Children, 2, "cart subtasks")

	entries, err := svc.AuditLog(ctx, sum.Projects[0].Ref())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fixture.ImportActor, entries[0].Actor)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := fixture.Parse(strings.NewReader("workspace: acme\nprojcts: []\n"))
	require.ErrorIs(t, err, issues.ErrInvalidInput)
}

func TestImportRejectsEpicAsItem(t *testing.T) {
	svc := newService(t)
	f := &fixture.File{Projects: []fixture.Project{{
		Key:   "BAD",
		Name:  "Bad",
		Items: []fixture.Item{{Type: "epic", Title: "Nested"}},
	}}}

	_, err := fixture.Import(context.Background(), svc, f, "default")
	require.ErrorIs(t, err, issues.ErrInvalidInput)
}
