package issues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/satyaki-up/matorral/internal/audit"
	"github.com/satyaki-up/matorral/internal/db"
)

var projectKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)
var workspaceSlugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,48}$`)

const maxCreateAttempts = 8

// Service is the SQLite persistence layer for the work-item hierarchy.
type Service struct {
	db    *sql.DB
	types *ContentTypes
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database, types: NewContentTypes(database)}
}

func (s *Service) ContentTypes() *ContentTypes {
	return s.types
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Workspaces ──────────────────────────────────────────────────────────────

func (s *Service) CreateWorkspace(ctx context.Context, slug, name string) (*Workspace, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	name = strings.TrimSpace(name)
	if !workspaceSlugRe.MatchString(slug) {
		return nil, fmt.Errorf("%w: workspace slug must be 2-49 lowercase alphanumeric or '-' chars", ErrInvalidInput)
	}
	if name == "" {
		name = slug
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO workspaces(slug, name) VALUES (?, ?)`, slug, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: workspace %q already exists", ErrConflict, slug)
		}
		return nil, err
	}
	return s.GetWorkspace(ctx, slug)
}

func (s *Service) GetWorkspace(ctx context.Context, slug string) (*Workspace, error) {
	var w Workspace
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, created_at FROM workspaces WHERE slug = ?
	`, strings.TrimSpace(strings.ToLower(slug))).Scan(&w.ID, &w.Slug, &w.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: workspace %q not found", ErrNotFound, slug)
		}
		return nil, err
	}
	if w.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, err
	}
	return &w, nil
}

// EnsureWorkspace returns the workspace with slug, creating it if needed.
func (s *Service) EnsureWorkspace(ctx context.Context, slug string) (*Workspace, error) {
	w, err := s.GetWorkspace(ctx, slug)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateWorkspace(ctx, slug, "")
}

// ── Projects ────────────────────────────────────────────────────────────────

const projectColumns = `id, workspace_id, key, name, status, created_at, updated_at`

func (s *Service) CreateProject(ctx context.Context, workspaceID int64, key, name string) (*Project, error) {
	key = strings.TrimSpace(strings.ToUpper(key))
	name = strings.TrimSpace(name)
	if !projectKeyRe.MatchString(key) {
		return nil, fmt.Errorf("%w: project key must be 2-10 uppercase alphanumeric chars starting with a letter", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects(workspace_id, key, name, status) VALUES (?, ?, ?, ?)
	`, workspaceID, key, name, string(ProjectDraft))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: project key %q already used in workspace", ErrConflict, key)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: workspace %d not found", ErrNotFound, workspaceID)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

func (s *Service) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %d not found", ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) FindProject(ctx context.Context, workspaceID int64, key string) (*Project, error) {
	key = strings.TrimSpace(strings.ToUpper(key))
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE workspace_id = ? AND key = ?
	`, workspaceID, key)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %q not found", ErrNotFound, key)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context, workspaceID int64) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE workspace_id = ? ORDER BY key ASC
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ── Milestones ──────────────────────────────────────────────────────────────

const milestoneColumns = `id, project_id, key, title, status, priority, created_at, updated_at`

type NewMilestone struct {
	ProjectID int64
	Title     string
	Status    IssueStatus
	Priority  Priority
}

func (s *Service) CreateMilestone(ctx context.Context, in NewMilestone) (*Milestone, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = IssueDraft
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: %q is not an issue status", ErrInvalidStatus, in.Status)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	if _, err := s.GetProject(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		var count int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM milestones WHERE project_id = ?`, in.ProjectID).Scan(&count); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("M-%d", count+1+int64(attempt))
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO milestones(project_id, key, title, status, priority) VALUES (?, ?, ?, ?, ?)
		`, in.ProjectID, key, in.Title, string(in.Status), string(in.Priority))
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return s.GetMilestone(ctx, id)
	}
	return nil, fmt.Errorf("%w: failed to allocate milestone key after retries", ErrConflict)
}

func (s *Service) GetMilestone(ctx context.Context, id int64) (*Milestone, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: milestone %d not found", ErrNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

// Milestones lists a project's milestones in creation order.
func (s *Service) Milestones(ctx context.Context, projectID int64) ([]*Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE project_id = ? ORDER BY id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ── Issues ──────────────────────────────────────────────────────────────────

const issueColumns = `id, project_id, content_type_id, key, title, status, priority, estimated_points,
	parent_id, position, milestone_id, created_at, updated_at`

type NewIssue struct {
	ProjectID       int64
	Type            Kind
	Title           string
	Status          IssueStatus
	Priority        Priority
	EstimatedPoints *int
	ParentID        *int64
	MilestoneID     *int64
}

func (s *Service) CreateIssue(ctx context.Context, in NewIssue) (*Issue, error) {
	in.Title = strings.TrimSpace(in.Title)
	if !IsValidIssueType(in.Type) {
		return nil, fmt.Errorf("%w: unknown issue type %q", ErrInvalidInput, in.Type)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = IssueDraft
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: %q is not an issue status", ErrInvalidStatus, in.Status)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	if in.EstimatedPoints != nil && *in.EstimatedPoints < 0 {
		return nil, fmt.Errorf("%w: estimated points cannot be negative", ErrInvalidInput)
	}
	ctID, err := s.types.ID(ctx, in.Type)
	if err != nil {
		return nil, err
	}

	project, err := s.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}

	var parent any
	if in.ParentID != nil {
		p, err := s.GetIssue(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if err := validateTreeParent(in.Type, p, project.ID); err != nil {
			return nil, err
		}
		parent = p.ID
	}
	var milestone any
	if in.MilestoneID != nil {
		m, err := s.GetMilestone(ctx, *in.MilestoneID)
		if err != nil {
			return nil, err
		}
		if err := validateMilestoneLink(in.Type, m, project.ID); err != nil {
			return nil, err
		}
		milestone = m.ID
	}
	var points any
	if in.EstimatedPoints != nil {
		points = *in.EstimatedPoints
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var count int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE project_id = ?`, project.ID).Scan(&count); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		position, err := nextPositionTx(ctx, tx, project.ID, parent)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		key := fmt.Sprintf("%s-%d", project.Key, count+1+int64(attempt))

		res, err := tx.ExecContext(ctx, `
			INSERT INTO issues(project_id, content_type_id, key, title, status, priority, estimated_points, parent_id, position, milestone_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, project.ID, ctID, key, in.Title, string(in.Status), string(in.Priority), points, parent, position, milestone)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		return s.GetIssue(ctx, id)
	}
	return nil, fmt.Errorf("%w: failed to allocate issue key after retries", ErrConflict)
}

func nextPositionTx(ctx context.Context, tx *sql.Tx, projectID int64, parent any) (int, error) {
	var max sql.NullInt64
	var err error
	if parent == nil {
		err = tx.QueryRowContext(ctx, `SELECT MAX(position) FROM issues WHERE project_id = ? AND parent_id IS NULL`, projectID).Scan(&max)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT MAX(position) FROM issues WHERE parent_id = ?`, parent).Scan(&max)
	}
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (s *Service) GetIssue(ctx context.Context, id int64) (*Issue, error) {
	list, err := s.queryIssues(ctx, `id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: issue %d not found", ErrNotFound, id)
	}
	return list[0], nil
}

// SetParent moves a work item under another epic, or to the project root
// when parentID is nil.
func (s *Service) SetParent(ctx context.Context, id int64, parentID *int64) (*Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	issue, err := s.getIssueTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !issue.Type.IsWorkItem() {
		return nil, fmt.Errorf("%w: %s cannot have a parent", ErrInvalidParent, issue.Type)
	}

	var newParent any
	if parentID != nil {
		parent, err := s.getIssueTx(ctx, tx, *parentID)
		if err != nil {
			return nil, err
		}
		if err := validateTreeParent(issue.Type, parent, issue.ProjectID); err != nil {
			return nil, err
		}
		newParent = parent.ID
	}
	position, err := nextPositionTx(ctx, tx, issue.ProjectID, newParent)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE issues SET parent_id = ?, position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, newParent, position, id)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: issue %d not found", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetIssue(ctx, id)
}

// SetMilestone links an epic to a milestone of its project, or unlinks it.
func (s *Service) SetMilestone(ctx context.Context, epicID int64, milestoneID *int64) (*Issue, error) {
	epic, err := s.GetIssue(ctx, epicID)
	if err != nil {
		return nil, err
	}
	var link any
	if milestoneID != nil {
		m, err := s.GetMilestone(ctx, *milestoneID)
		if err != nil {
			return nil, err
		}
		if err := validateMilestoneLink(epic.Type, m, epic.ProjectID); err != nil {
			return nil, err
		}
		link = m.ID
	} else if epic.Type != KindEpic {
		return nil, fmt.Errorf("%w: only epics can be linked to a milestone", ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE issues SET milestone_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, link, epicID); err != nil {
		return nil, err
	}
	return s.GetIssue(ctx, epicID)
}

// ListIssues returns every epic and work item of a project in tree order.
func (s *Service) ListIssues(ctx context.Context, projectID int64) ([]*Issue, error) {
	return s.queryIssues(ctx, `project_id = ?`, projectID)
}

// ProjectEpics returns all epics of a project, linked or not.
func (s *Service) ProjectEpics(ctx context.Context, projectID int64) ([]*Issue, error) {
	epicType, err := s.types.ID(ctx, KindEpic)
	if err != nil {
		return nil, err
	}
	return s.queryIssues(ctx, `project_id = ? AND content_type_id = ?`, projectID, epicType)
}

// OrphanEpics returns the project's epics that have no milestone.
func (s *Service) OrphanEpics(ctx context.Context, projectID int64) ([]*Issue, error) {
	epicType, err := s.types.ID(ctx, KindEpic)
	if err != nil {
		return nil, err
	}
	return s.queryIssues(ctx, `project_id = ? AND content_type_id = ? AND milestone_id IS NULL`, projectID, epicType)
}

func (s *Service) MilestoneEpics(ctx context.Context, milestoneID int64) ([]*Issue, error) {
	epicType, err := s.types.ID(ctx, KindEpic)
	if err != nil {
		return nil, err
	}
	return s.queryIssues(ctx, `milestone_id = ? AND content_type_id = ?`, milestoneID, epicType)
}

// RootWorkItems returns stories, bugs and chores that sit under no epic.
func (s *Service) RootWorkItems(ctx context.Context, projectID int64) ([]*Issue, error) {
	epicType, err := s.types.ID(ctx, KindEpic)
	if err != nil {
		return nil, err
	}
	return s.queryIssues(ctx, `project_id = ? AND parent_id IS NULL AND content_type_id != ?`, projectID, epicType)
}

// Children returns the direct tree children of an issue in position order.
func (s *Service) Children(ctx context.Context, issueID int64) ([]*Issue, error) {
	return s.queryIssues(ctx, `parent_id = ?`, issueID)
}

func (s *Service) queryIssues(ctx context.Context, where string, args ...any) ([]*Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumns+`
		FROM issues
		WHERE `+where+`
		ORDER BY position ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Issue
	for rows.Next() {
		issue, err := s.scanIssue(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

func (s *Service) getIssueTx(ctx context.Context, tx *sql.Tx, id int64) (*Issue, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := s.scanIssue(ctx, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: issue %d not found", ErrNotFound, id)
		}
		return nil, err
	}
	return issue, nil
}

// ── Subtasks ────────────────────────────────────────────────────────────────

const subtaskColumns = `id, content_type_id, object_id, title, status, position, created_at, updated_at`

func (s *Service) CreateSubtask(ctx context.Context, parent ParentRef, title string, status SubtaskStatus) (*Subtask, error) {
	title = strings.TrimSpace(title)
	if parent.IsZero() {
		return nil, fmt.Errorf("%w: subtask parent is required", ErrInvalidParent)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if status == "" {
		status = SubtaskTodo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q is not a subtask status", ErrInvalidStatus, status)
	}
	owner, err := s.GetIssue(ctx, parent.ID())
	if err != nil {
		return nil, err
	}
	if owner.Type != parent.Kind() {
		return nil, fmt.Errorf("%w: issue %d is a %s, not a %s", ErrInvalidParent, owner.ID, owner.Type, parent.Kind())
	}
	ctID, err := s.types.ID(ctx, parent.Kind())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(position) FROM subtasks WHERE content_type_id = ? AND object_id = ?
	`, ctID, parent.ID()).Scan(&max); err != nil {
		return nil, err
	}
	position := 0
	if max.Valid {
		position = int(max.Int64) + 1
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO subtasks(content_type_id, object_id, title, status, position) VALUES (?, ?, ?, ?, ?)
	`, ctID, parent.ID(), title, string(status), position)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSubtask(ctx, id)
}

func (s *Service) GetSubtask(ctx context.Context, id int64) (*Subtask, error) {
	list, err := s.querySubtasks(ctx, `id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: subtask %d not found", ErrNotFound, id)
	}
	return list[0], nil
}

// Subtasks returns the subtasks attached to one work item.
func (s *Service) Subtasks(ctx context.Context, parent ParentRef) ([]*Subtask, error) {
	if parent.IsZero() {
		return nil, nil
	}
	ctID, err := s.types.ID(ctx, parent.Kind())
	if err != nil {
		return nil, err
	}
	return s.querySubtasks(ctx, `content_type_id = ? AND object_id = ?`, ctID, parent.ID())
}

func (s *Service) querySubtasks(ctx context.Context, where string, args ...any) ([]*Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subtaskColumns+`
		FROM subtasks
		WHERE `+where+`
		ORDER BY position ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Subtask
	for rows.Next() {
		st, err := s.scanSubtask(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ── Polymorphic access ──────────────────────────────────────────────────────

// GetEntity loads the entity ref points at. An issue whose type differs from
// ref.Kind is reported as not found.
func (s *Service) GetEntity(ctx context.Context, ref Ref) (Entity, error) {
	switch {
	case ref.Kind == KindProject:
		return s.GetProject(ctx, ref.ID)
	case ref.Kind == KindMilestone:
		return s.GetMilestone(ctx, ref.ID)
	case ref.Kind.IsIssue():
		issue, err := s.GetIssue(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if issue.Type != ref.Kind {
			return nil, fmt.Errorf("%w: %s %d not found", ErrNotFound, ref.Kind, ref.ID)
		}
		return issue, nil
	case ref.Kind == KindSubtask:
		return s.GetSubtask(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, ref.Kind)
	}
}

// WorkspaceOf returns the workspace id owning the entity.
func (s *Service) WorkspaceOf(ctx context.Context, ref Ref) (int64, error) {
	e, err := s.GetEntity(ctx, ref)
	if err != nil {
		return 0, err
	}
	var projectID int64
	switch v := e.(type) {
	case *Project:
		return v.WorkspaceID, nil
	case *Milestone:
		projectID = v.ProjectID
	case *Issue:
		projectID = v.ProjectID
	case *Subtask:
		owner, err := s.GetIssue(ctx, v.Parent.ID())
		if err != nil {
			return 0, err
		}
		projectID = owner.ProjectID
	}
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return p.WorkspaceID, nil
}

// workspaceRows selects the ids of a model's rows together with the
// workspace that owns them.
var workspaceRows = map[Model]string{
	ModelProject:   `SELECT id, workspace_id FROM projects WHERE id IN (%s)`,
	ModelMilestone: `SELECT m.id, p.workspace_id FROM milestones m JOIN projects p ON p.id = m.project_id WHERE m.id IN (%s)`,
	ModelIssue:     `SELECT i.id, p.workspace_id FROM issues i JOIN projects p ON p.id = i.project_id WHERE i.id IN (%s)`,
	ModelSubtask: `SELECT s.id, p.workspace_id FROM subtasks s
		JOIN issues i ON i.id = s.object_id
		JOIN projects p ON p.id = i.project_id
		WHERE s.id IN (%s)`,
}

// InWorkspace splits ids of model's rows into those owned by workspaceID and
// the rest, which includes ids that do not exist. Order is preserved.
func (s *Service) InWorkspace(ctx context.Context, workspaceID int64, model Model, ids []int64) (kept, dropped []int64, err error) {
	query, ok := workspaceRows[model]
	if !ok || len(ids) == 0 {
		return nil, ids, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, db.Placeholders(len(ids))), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	owner := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, wsID int64
		if err := rows.Scan(&id, &wsID); err != nil {
			return nil, nil, err
		}
		owner[id] = wsID
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		if ws, ok := owner[id]; ok && ws == workspaceID {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return kept, dropped, nil
}

// SetStatus validates raw against the entity's own enumeration and stores it.
// The change is audited like any other status write.
func (s *Service) SetStatus(ctx context.Context, ref Ref, raw, actor string) (Entity, error) {
	if _, err := s.GetEntity(ctx, ref); err != nil {
		return nil, err
	}
	model := ref.Kind.Model()
	status, err := ParseStatus(model.Family(), raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.UpdateStatuses(ctx, model, []int64{ref.ID}, status, actor); err != nil {
		return nil, err
	}
	return s.GetEntity(ctx, ref)
}

type tableSpec struct {
	name string
	repr string
	// kind is the content type of rows whose table holds a single kind;
	// empty for issues, which carry their own content_type_id.
	kind Kind
}

var modelTables = map[Model]tableSpec{
	ModelProject:   {name: "projects", repr: `'[' || key || '] ' || name`, kind: KindProject},
	ModelMilestone: {name: "milestones", repr: `'[' || key || '] ' || title`, kind: KindMilestone},
	ModelIssue:     {name: "issues", repr: `'[' || key || '] ' || title`},
	ModelSubtask:   {name: "subtasks", repr: `title`, kind: KindSubtask},
}

// UpdateStatuses sets target on every listed row of model's table whose
// status differs, writing one audit entry per changed row. Ids that do not
// exist are ignored. It returns the number of rows changed.
func (s *Service) UpdateStatuses(ctx context.Context, model Model, ids []int64, target Status, actor string) (int, error) {
	spec, ok := modelTables[model]
	if !ok {
		return 0, fmt.Errorf("%w: unknown model %q", ErrInvalidInput, model)
	}
	if target == nil || target.Family() != model.Family() || !target.Valid() {
		return 0, fmt.Errorf("%w: %v is not a %s status", ErrInvalidStatus, target, model.Family())
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var fixedType int64
	if spec.kind != "" {
		id, err := s.types.ID(ctx, spec.kind)
		if err != nil {
			return 0, err
		}
		fixedType = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	typeExpr := "0"
	if spec.kind == "" {
		typeExpr = "content_type_id"
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, status, %s, %s FROM %s WHERE id IN (%s) ORDER BY id ASC
	`, spec.repr, typeExpr, spec.name, db.Placeholders(len(ids))), args...)
	if err != nil {
		return 0, err
	}

	batch := audit.NewBatchID()
	var changed []any
	var entries []audit.Entry
	for rows.Next() {
		var id, ctID int64
		var old, repr string
		if err := rows.Scan(&id, &old, &repr, &ctID); err != nil {
			rows.Close()
			return 0, err
		}
		if old == target.String() {
			continue
		}
		if spec.kind != "" {
			ctID = fixedType
		}
		changed = append(changed, id)
		entries = append(entries, audit.Entry{
			BatchID:       batch,
			ContentTypeID: ctID,
			ObjectID:      id,
			ObjectRepr:    repr,
			Field:         "status",
			OldValue:      statusLabel(model.Family(), old),
			NewValue:      target.Label(),
			Actor:         actor,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()
	if len(changed) == 0 {
		return 0, nil
	}

	updateArgs := append([]any{target.String()}, changed...)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id IN (%s)
	`, spec.name, db.Placeholders(len(changed))), updateArgs...); err != nil {
		return 0, err
	}
	if err := audit.Insert(ctx, tx, entries); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// AuditLog returns the audit trail of one entity.
func (s *Service) AuditLog(ctx context.Context, ref Ref) ([]audit.Entry, error) {
	kind := ref.Kind
	ctID, err := s.types.ID(ctx, kind)
	if err != nil {
		return nil, err
	}
	return audit.ListForObject(ctx, s.db, ctID, ref.ID)
}

// AuditBatch returns the entries written by one UpdateStatuses call.
func (s *Service) AuditBatch(ctx context.Context, batchID string) ([]audit.Entry, error) {
	return audit.ListBatch(ctx, s.db, strings.TrimSpace(batchID))
}

func statusLabel(f Family, raw string) string {
	st, err := ParseStatus(f, raw)
	if err != nil {
		return raw
	}
	return st.Label()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ── Scanning ────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Key, &p.Name, &p.Status, &created, &updated); err != nil {
		return nil, err
	}
	if err := parseTimes(&p.CreatedAt, &p.UpdatedAt, created, updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMilestone(row scanner) (*Milestone, error) {
	var m Milestone
	var created, updated string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Key, &m.Title, &m.Status, &m.Priority, &created, &updated); err != nil {
		return nil, err
	}
	if err := parseTimes(&m.CreatedAt, &m.UpdatedAt, created, updated); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) scanIssue(ctx context.Context, row scanner) (*Issue, error) {
	var is Issue
	var ctID int64
	var points, parent, milestone sql.NullInt64
	var created, updated string
	if err := row.Scan(
		&is.ID,
		&is.ProjectID,
		&ctID,
		&is.Key,
		&is.Title,
		&is.Status,
		&is.Priority,
		&points,
		&parent,
		&is.Position,
		&milestone,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	kind, err := s.types.Kind(ctx, ctID)
	if err != nil {
		return nil, err
	}
	is.Type = kind
	if points.Valid {
		v := int(points.Int64)
		is.EstimatedPoints = &v
	}
	if parent.Valid {
		v := parent.Int64
		is.ParentID = &v
	}
	if milestone.Valid {
		v := milestone.Int64
		is.MilestoneID = &v
	}
	if err := parseTimes(&is.CreatedAt, &is.UpdatedAt, created, updated); err != nil {
		return nil, err
	}
	return &is, nil
}

func (s *Service) scanSubtask(ctx context.Context, row scanner) (*Subtask, error) {
	var st Subtask
	var ctID, objectID int64
	var created, updated string
	if err := row.Scan(&st.ID, &ctID, &objectID, &st.Title, &st.Status, &st.Position, &created, &updated); err != nil {
		return nil, err
	}
	kind, err := s.types.Kind(ctx, ctID)
	if err != nil {
		return nil, err
	}
	parent, err := NewParentRef(kind, objectID)
	if err != nil {
		return nil, fmt.Errorf("subtask %d: %w", st.ID, err)
	}
	st.Parent = parent
	if err := parseTimes(&st.CreatedAt, &st.UpdatedAt, created, updated); err != nil {
		return nil, err
	}
	return &st, nil
}

func parseTimes(createdAt, updatedAt *time.Time, created, updated string) error {
	var err error
	if *createdAt, err = db.ParseTime(created); err != nil {
		return err
	}
	if *updatedAt, err = db.ParseTime(updated); err != nil {
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}
