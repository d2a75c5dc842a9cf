package cascade_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/issues"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	svc     *issues.Service
	engine  *cascade.Engine
	project *issues.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "cascade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	svc := issues.NewService(database)
	ws, err := svc.CreateWorkspace(ctx, "acme", "Acme")
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, ws.ID, "CORE", "Core platform")
	require.NoError(t, err)

	return &fixture{
		t:       t,
		ctx:     ctx,
		svc:     svc,
		engine:  cascade.NewEngine(svc, nil),
		project: project,
	}
}

func (f *fixture) milestone(title string, status issues.IssueStatus) *issues.Milestone {
	f.t.Helper()
	m, err := f.svc.CreateMilestone(f.ctx, issues.NewMilestone{ProjectID: f.project.ID, Title: title, Status: status})
	require.NoError(f.t, err)
	return m
}

func (f *fixture) epic(title string, status issues.IssueStatus, milestone *issues.Milestone) *issues.Issue {
	f.t.Helper()
	in := issues.NewIssue{ProjectID: f.project.ID, Type: issues.KindEpic, Title: title, Status: status}
	if milestone != nil {
		in.MilestoneID = &milestone.ID
	}
	epic, err := f.svc.CreateIssue(f.ctx, in)
	require.NoError(f.t, err)
	return epic
}

func (f *fixture) story(title string, status issues.IssueStatus, epic *issues.Issue) *issues.Issue {
	f.t.Helper()
	in := issues.NewIssue{ProjectID: f.project.ID, Type: issues.KindStory, Title: title, Status: status}
	if epic != nil {
		in.ParentID = &epic.ID
	}
	story, err := f.svc.CreateIssue(f.ctx, in)
	require.NoError(f.t, err)
	return story
}

func (f *fixture) subtask(parent *issues.Issue, title string, status issues.SubtaskStatus) *issues.Subtask {
	f.t.Helper()
	ref, ok := parent.AsParent()
	require.True(f.t, ok, "%s cannot own subtasks", parent.Type)
	st, err := f.svc.CreateSubtask(f.ctx, ref, title, status)
	require.NoError(f.t, err)
	return st
}

// set persists raw on ent, the way a caller does before asking for a
// cascade check, and returns the reloaded entity with its parsed status.
func (f *fixture) set(ent issues.Entity, raw string) (issues.Entity, issues.Status) {
	f.t.Helper()
	updated, err := f.svc.SetStatus(f.ctx, ent.Ref(), raw, "tester")
	require.NoError(f.t, err)
	return updated, updated.CurrentStatus()
}

func (f *fixture) check(ent issues.Entity, raw string) *cascade.Info {
	f.t.Helper()
	updated, status := f.set(ent, raw)
	info, err := f.engine.Check(f.ctx, updated, status)
	require.NoError(f.t, err)
	return info
}

func (f *fixture) status(ref issues.Ref) string {
	f.t.Helper()
	ent, err := f.svc.GetEntity(f.ctx, ref)
	require.NoError(f.t, err)
	return ent.CurrentStatus().String()
}

func refs(items []issues.Entity) []issues.Ref {
	out := make([]issues.Ref, len(items))
	for i, it := range items {
		out[i] = it.Ref()
	}
	return out
}
