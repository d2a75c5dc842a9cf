package issues_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/issues"
)

func newTestService(t *testing.T) *issues.Service {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "issues.db")
	database, err := db.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return issues.NewService(database)
}

func newTestProject(t *testing.T, svc *issues.Service, key string) *issues.Project {
	t.Helper()
	ctx := context.Background()
	ws, err := svc.EnsureWorkspace(ctx, "acme")
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	p, err := svc.CreateProject(ctx, ws.ID, key, "Project "+key)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestHierarchyIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	project := newTestProject(t, svc, "CAT")

	milestone, err := svc.CreateMilestone(ctx, issues.NewMilestone{ProjectID: project.ID, Title: "Beta"})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	epic, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindEpic, Title: "Backend", MilestoneID: &milestone.ID})
	if err != nil {
		t.Fatalf("create epic: %v", err)
	}
	story, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindStory, Title: "Build API", ParentID: &epic.ID})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if _, err := svc.CreateSubtask(ctx, issues.StoryParent(story.ID), "Write handler", ""); err != nil {
		t.Fatalf("create subtask: %v", err)
	}

	if epic.Key != "CAT-1" || story.Key != "CAT-2" || milestone.Key != "M-1" {
		t.Fatalf("unexpected keys: epic=%s story=%s milestone=%s", epic.Key, story.Key, milestone.Key)
	}
	if story.Status != issues.IssueDraft || story.Priority != issues.PriorityMedium {
		t.Fatalf("expected draft/medium defaults, got %s/%s", story.Status, story.Priority)
	}

	_, err = svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindEpic, Title: "Nested epic", ParentID: &epic.ID})
	if !errors.Is(err, issues.ErrInvalidParent) {
		t.Fatalf("expected invalid parent for nested epic, got %v", err)
	}
	_, err = svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindBug, Title: "Under story", ParentID: &story.ID})
	if !errors.Is(err, issues.ErrInvalidParent) {
		t.Fatalf("expected invalid parent for bug under story, got %v", err)
	}
	_, err = svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindStory, Title: "Linked story", MilestoneID: &milestone.ID})
	if !errors.Is(err, issues.ErrInvalidInput) {
		t.Fatalf("expected invalid input for story linked to milestone, got %v", err)
	}
	_, err = svc.CreateSubtask(ctx, issues.BugParent(story.ID), "Wrong owner kind", "")
	if !errors.Is(err, issues.ErrInvalidParent) {
		t.Fatalf("expected invalid parent for mismatched subtask owner, got %v", err)
	}

	tree, err := svc.Tree(ctx, project.ID)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree) != 1 {
		t.Fatalf("expected one milestone root, got %d", len(tree))
	}
	if len(tree[0].Children) != 1 || len(tree[0].Children[0].Children) != 1 || len(tree[0].Children[0].Children[0].Children) != 1 {
		t.Fatalf("expected milestone->epic->story->subtask structure, got %+v", tree)
	}
}

func TestCrossProjectLinksRejectedIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	cat := newTestProject(t, svc, "CAT")
	dog := newTestProject(t, svc, "DOG")

	catEpic, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: cat.ID, Type: issues.KindEpic, Title: "Cats"})
	if err != nil {
		t.Fatalf("create epic: %v", err)
	}
	dogMilestone, err := svc.CreateMilestone(ctx, issues.NewMilestone{ProjectID: dog.ID, Title: "Dogs"})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}

	_, err = svc.CreateIssue(ctx, issues.NewIssue{ProjectID: dog.ID, Type: issues.KindStory, Title: "Stray", ParentID: &catEpic.ID})
	if !errors.Is(err, issues.ErrInvalidParent) {
		t.Fatalf("expected invalid parent across projects, got %v", err)
	}
	if _, err := svc.SetMilestone(ctx, catEpic.ID, &dogMilestone.ID); !errors.Is(err, issues.ErrInvalidInput) {
		t.Fatalf("expected invalid input linking across projects, got %v", err)
	}

	// Keys are normalized to upper case before the uniqueness check.
	if _, err := svc.CreateProject(ctx, cat.WorkspaceID, "cat", "Again"); !errors.Is(err, issues.ErrConflict) {
		t.Fatalf("expected conflict on duplicate key, got %v", err)
	}
}

func TestReparentingIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	project := newTestProject(t, svc, "CAT")

	backend, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindEpic, Title: "Backend"})
	if err != nil {
		t.Fatalf("create backend epic: %v", err)
	}
	frontend, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindEpic, Title: "Frontend"})
	if err != nil {
		t.Fatalf("create frontend epic: %v", err)
	}
	auth, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindStory, Title: "Add auth", ParentID: &backend.ID})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}

	moved, err := svc.SetParent(ctx, auth.ID, &frontend.ID)
	if err != nil {
		t.Fatalf("move story: %v", err)
	}
	if moved.ParentID == nil || *moved.ParentID != frontend.ID {
		t.Fatalf("expected parent %d, got %+v", frontend.ID, moved.ParentID)
	}

	// Work items may live at the project root.
	rooted, err := svc.SetParent(ctx, auth.ID, nil)
	if err != nil {
		t.Fatalf("move story to root: %v", err)
	}
	if rooted.ParentID != nil {
		t.Fatalf("expected no parent, got %d", *rooted.ParentID)
	}
	roots, err := svc.RootWorkItems(ctx, project.ID)
	if err != nil {
		t.Fatalf("root work items: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != auth.ID {
		t.Fatalf("expected auth as only root item, got %+v", roots)
	}

	if _, err := svc.SetParent(ctx, backend.ID, &frontend.ID); !errors.Is(err, issues.ErrInvalidParent) {
		t.Fatalf("expected epics to refuse a parent, got %v", err)
	}

	orphans, err := svc.OrphanEpics(ctx, project.ID)
	if err != nil {
		t.Fatalf("orphan epics: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("expected two orphan epics, got %d", len(orphans))
	}
}

func TestUpdateStatusesAuditIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	project := newTestProject(t, svc, "CAT")

	a, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindStory, Title: "A"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: project.ID, Type: issues.KindBug, Title: "B", Status: issues.IssueDone})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	n, err := svc.UpdateStatuses(ctx, issues.ModelIssue, []int64{a.ID, b.ID, a.ID, 999}, issues.IssueDone, "erin")
	if err != nil {
		t.Fatalf("update statuses: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the changed row to count, got %d", n)
	}

	entries, err := svc.AuditLog(ctx, a.Ref())
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.OldValue != "Draft" || e.NewValue != "Done" || e.Actor != "erin" || e.ObjectRepr != "[CAT-1] A" {
		t.Fatalf("unexpected audit entry %+v", e)
	}
	batch, err := svc.AuditBatch(ctx, e.BatchID)
	if err != nil {
		t.Fatalf("audit batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected one entry in batch, got %d", len(batch))
	}

	none, err := svc.AuditLog(ctx, b.Ref())
	if err != nil {
		t.Fatalf("audit log b: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected unchanged row to have no audit entries, got %d", len(none))
	}

	if _, err := svc.UpdateStatuses(ctx, issues.ModelSubtask, []int64{1}, issues.IssueDone, "erin"); !errors.Is(err, issues.ErrInvalidStatus) {
		t.Fatalf("expected invalid status across families, got %v", err)
	}
}

func TestSetStatusIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	project := newTestProject(t, svc, "CAT")

	ent, err := svc.SetStatus(ctx, project.Ref(), "ACTIVE", "cli")
	if err != nil {
		t.Fatalf("set project status: %v", err)
	}
	if ent.CurrentStatus() != issues.ProjectActive {
		t.Fatalf("expected active, got %s", ent.CurrentStatus())
	}
	if _, err := svc.SetStatus(ctx, project.Ref(), "in_progress", "cli"); !errors.Is(err, issues.ErrInvalidStatus) {
		t.Fatalf("expected issue status to be rejected for project, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, issues.Ref{Kind: issues.KindEpic, ID: 42}, "done", "cli"); !errors.Is(err, issues.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	wsID, err := svc.WorkspaceOf(ctx, project.Ref())
	if err != nil {
		t.Fatalf("workspace of: %v", err)
	}
	if wsID != project.WorkspaceID {
		t.Fatalf("expected workspace %d, got %d", project.WorkspaceID, wsID)
	}
}

func TestInWorkspaceIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	cat := newTestProject(t, svc, "CAT")

	other, err := svc.CreateWorkspace(ctx, "zoo", "Zoo")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	dog, err := svc.CreateProject(ctx, other.ID, "DOG", "Dogs")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	catStory, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: cat.ID, Type: issues.KindStory, Title: "Purr"})
	if err != nil {
		t.Fatalf("create cat story: %v", err)
	}
	dogStory, err := svc.CreateIssue(ctx, issues.NewIssue{ProjectID: dog.ID, Type: issues.KindStory, Title: "Bark"})
	if err != nil {
		t.Fatalf("create dog story: %v", err)
	}
	dogSub, err := svc.CreateSubtask(ctx, issues.StoryParent(dogStory.ID), "Loudly", "")
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}

	kept, dropped, err := svc.InWorkspace(ctx, cat.WorkspaceID, issues.ModelIssue, []int64{dogStory.ID, catStory.ID, 999})
	if err != nil {
		t.Fatalf("in workspace: %v", err)
	}
	if len(kept) != 1 || kept[0] != catStory.ID {
		t.Fatalf("expected only the cat story kept, got %v", kept)
	}
	if len(dropped) != 2 || dropped[0] != dogStory.ID || dropped[1] != 999 {
		t.Fatalf("expected dog story and missing id dropped in order, got %v", dropped)
	}

	kept, _, err = svc.InWorkspace(ctx, other.ID, issues.ModelSubtask, []int64{dogSub.ID})
	if err != nil {
		t.Fatalf("in workspace subtask: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("expected subtask kept in its own workspace, got %v", kept)
	}
	kept, _, err = svc.InWorkspace(ctx, other.ID, issues.ModelProject, []int64{cat.ID})
	if err != nil {
		t.Fatalf("in workspace project: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("expected foreign project dropped, got %v", kept)
	}
}
