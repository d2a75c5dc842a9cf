package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/config"
	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/issues"
)

func TestParseApplyFlags(t *testing.T) {
	req, err := parseApplyFlags([]string{"issue:4,5=done", "subtask:9, x=done"}, "project:1=completed")
	require.NoError(t, err)

	require.Len(t, req.Down, 2)
	assert.Equal(t, cascade.GroupChange{Model: issues.ModelIssue, IDs: []int64{4, 5}, Status: "done"}, req.Down[0])
	assert.Equal(t, []int64{9}, req.Down[1].IDs)
	require.NotNil(t, req.Up)
	assert.Equal(t, cascade.ParentChange{Model: issues.ModelProject, ID: 1, Status: "completed"}, *req.Up)
}

func TestParseApplyFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		down []string
		up   string
	}{
		{"missing status", []string{"issue:4"}, ""},
		{"missing model", []string{"4=done"}, ""},
		{"up with several ids", nil, "issue:4,5=done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseApplyFlags(tt.down, tt.up)
			assert.ErrorIs(t, err, issues.ErrInvalidInput)
		})
	}
}

func TestApplyArgsRoundTrip(t *testing.T) {
	req := cascade.ApplyRequest{
		Down: []cascade.GroupChange{{Model: issues.ModelMilestone, IDs: []int64{2, 3}, Status: "done"}},
		Up:   &cascade.ParentChange{Model: issues.ModelProject, ID: 1, Status: "completed"},
	}
	out := applyArgs(req)
	assert.Equal(t, "--down milestone:2,3=done --up project:1=completed", out)

	back, err := parseApplyFlags([]string{"milestone:2,3=done"}, "project:1=completed")
	require.NoError(t, err)
	assert.Equal(t, req, back)
}

func TestRenderErrorExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", issues.ErrInvalidInput), 2},
		{fmt.Errorf("%w: bad", issues.ErrInvalidStatus), 2},
		{fmt.Errorf("%w: bad", issues.ErrInvalidParent), 2},
		{fmt.Errorf("%w: gone", issues.ErrNotFound), 3},
		{fmt.Errorf("%w: dup", issues.ErrConflict), 4},
		{config.ErrExists, 4},
		{fmt.Errorf("disk full"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, renderError(tt.err))
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "0", "-3", "4.5"} {
		_, err := parseID(raw)
		assert.ErrorIs(t, err, issues.ErrInvalidInput, raw)
	}
}

// useTestStore points the command globals at a fresh database.
func useTestStore(t *testing.T) *issues.Project {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "mt.db"))
	require.NoError(t, err)

	prevSvc, prevEngine, prevActor := svc, engine, actor
	svc = issues.NewService(database)
	engine = cascade.NewEngine(svc, nil)
	actor = "tester"
	t.Cleanup(func() {
		_ = database.Close()
		svc, engine, actor = prevSvc, prevEngine, prevActor
	})

	ws, err := svc.EnsureWorkspace(ctx, "acme")
	require.NoError(t, err)
	p, err := svc.CreateProject(ctx, ws.ID, "CORE", "Core")
	require.NoError(t, err)
	return p
}

func TestStoreStatusesWritesNothingOnBadArguments(t *testing.T) {
	ctx := context.Background()
	p := useTestStore(t)

	story, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: p.ID, Type: issues.KindStory, Title: "Cart"})
	require.NoError(t, err)
	bug, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: p.ID, Type: issues.KindBug, Title: "Rounding"})
	require.NoError(t, err)
	st, err := svc.CreateSubtask(ctx, issues.StoryParent(story.ID), "Totals", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    []string
		raw     string
		wantErr error
	}{
		{"mixed families", []string{story.Ref().String(), st.Ref().String()}, "done", issues.ErrInvalidInput},
		{"project after story", []string{story.Ref().String(), p.Ref().String()}, "done", issues.ErrInvalidInput},
		{"missing entity", []string{story.Ref().String(), "bug:999"}, "done", issues.ErrNotFound},
		{"status outside family", []string{story.Ref().String(), bug.Ref().String()}, "completed", issues.ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := storeStatuses(ctx, tt.args, tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)

			for _, ref := range []issues.Ref{story.Ref(), bug.Ref(), st.Ref(), p.Ref()} {
				ent, err := svc.GetEntity(ctx, ref)
				require.NoError(t, err)
				assert.Equal(t, issues.CategoryTodo, ent.CurrentStatus().Category(), ref.String())
			}
		})
	}
}

func TestStoreStatusesThenCheckAll(t *testing.T) {
	ctx := context.Background()
	p := useTestStore(t)

	story, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: p.ID, Type: issues.KindStory, Title: "Cart"})
	require.NoError(t, err)
	bug, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: p.ID, Type: issues.KindBug, Title: "Rounding"})
	require.NoError(t, err)
	st, err := svc.CreateSubtask(ctx, issues.StoryParent(story.ID), "Totals", "")
	require.NoError(t, err)

	ents, status, err := storeStatuses(ctx, []string{story.Ref().String(), bug.Ref().String()}, "DONE")
	require.NoError(t, err)
	assert.Equal(t, issues.IssueDone, status)
	require.Len(t, ents, 2)
	for _, e := range ents {
		assert.Equal(t, issues.IssueDone, e.CurrentStatus())
	}

	info, err := checkAll(ctx, ents, status)
	require.NoError(t, err)
	require.NotNil(t, info.Down)
	require.Len(t, info.Down.Groups, 1)
	assert.Equal(t, []int64{st.ID}, info.Down.Groups[0].IDs())
	assert.Nil(t, info.Up)
}
