// Package cascade propagates status changes through the work hierarchy.
//
// Check computes a preview: the descendants that should follow a parent's
// new status (cascade down) and the parent that all-complete siblings
// justify advancing (cascade up). Apply commits a preview a human has
// confirmed. Apply trusts its input; eligibility is decided only by Check.
package cascade

import (
	"context"

	"github.com/satyaki-up/matorral/internal/issues"
)

// Store is the read and bulk-write surface the engine needs.
// *issues.Service implements it.
type Store interface {
	GetProject(ctx context.Context, id int64) (*issues.Project, error)
	GetMilestone(ctx context.Context, id int64) (*issues.Milestone, error)
	GetIssue(ctx context.Context, id int64) (*issues.Issue, error)

	Milestones(ctx context.Context, projectID int64) ([]*issues.Milestone, error)
	ProjectEpics(ctx context.Context, projectID int64) ([]*issues.Issue, error)
	OrphanEpics(ctx context.Context, projectID int64) ([]*issues.Issue, error)
	MilestoneEpics(ctx context.Context, milestoneID int64) ([]*issues.Issue, error)
	RootWorkItems(ctx context.Context, projectID int64) ([]*issues.Issue, error)
	Children(ctx context.Context, issueID int64) ([]*issues.Issue, error)
	Subtasks(ctx context.Context, parent issues.ParentRef) ([]*issues.Subtask, error)

	UpdateStatuses(ctx context.Context, model issues.Model, ids []int64, target issues.Status, actor string) (int, error)
}

var _ Store = (*issues.Service)(nil)
