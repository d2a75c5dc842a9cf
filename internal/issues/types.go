package issues

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the entity types of the hierarchy.
type Kind string

const (
	KindProject   Kind = "project"
	KindMilestone Kind = "milestone"
	KindEpic      Kind = "epic"
	KindStory     Kind = "story"
	KindBug       Kind = "bug"
	KindChore     Kind = "chore"
	KindSubtask   Kind = "subtask"
)

// IsWorkItem reports whether k can carry subtasks.
func (k Kind) IsWorkItem() bool {
	return k == KindStory || k == KindBug || k == KindChore
}

// IsIssue reports whether k is stored in the issue tree.
func (k Kind) IsIssue() bool {
	return k == KindEpic || k.IsWorkItem()
}

func (k Kind) Model() Model {
	switch {
	case k == KindProject:
		return ModelProject
	case k == KindMilestone:
		return ModelMilestone
	case k.IsIssue():
		return ModelIssue
	case k == KindSubtask:
		return ModelSubtask
	default:
		return ""
	}
}

func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	switch k {
	case KindProject, KindMilestone, KindEpic, KindStory, KindBug, KindChore, KindSubtask:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, raw)
}

// Model names the table an entity lives in. Epics and work items share
// ModelIssue, which is also the group tag used by cascade payloads.
type Model string

const (
	ModelProject   Model = "project"
	ModelMilestone Model = "milestone"
	ModelIssue     Model = "issue"
	ModelSubtask   Model = "subtask"
)

func (m Model) Family() Family {
	switch m {
	case ModelProject:
		return FamilyProject
	case ModelMilestone, ModelIssue:
		return FamilyIssue
	case ModelSubtask:
		return FamilySubtask
	default:
		return ""
	}
}

func ParseModel(raw string) (Model, bool) {
	m := Model(raw)
	switch m {
	case ModelProject, ModelMilestone, ModelIssue, ModelSubtask:
		return m, true
	}
	return "", false
}

// Ref identifies one entity.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ParseRef reads the "kind:id" form produced by Ref.String.
func ParseRef(raw string) (Ref, error) {
	kindPart, idPart, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Ref{}, fmt.Errorf("%w: reference %q must look like kind:id", ErrInvalidInput, raw)
	}
	kind, err := ParseKind(strings.ToLower(kindPart))
	if err != nil {
		return Ref{}, err
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, fmt.Errorf("%w: invalid id in %q", ErrInvalidInput, raw)
	}
	return Ref{Kind: kind, ID: id}, nil
}

// Entity is implemented by *Project, *Milestone, *Issue and *Subtask only.
type Entity interface {
	Ref() Ref
	CurrentStatus() Status
	String() string
	isEntity()
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Workspace struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID          int64         `json:"id"`
	WorkspaceID int64         `json:"workspace_id"`
	Key         string        `json:"key"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (p *Project) Ref() Ref              { return Ref{Kind: KindProject, ID: p.ID} }
func (p *Project) CurrentStatus() Status { return p.Status }
func (p *Project) String() string        { return fmt.Sprintf("[%s] %s", p.Key, p.Name) }
func (*Project) isEntity()               {}

type Milestone struct {
	ID        int64       `json:"id"`
	ProjectID int64       `json:"project_id"`
	Key       string      `json:"key"`
	Title     string      `json:"title"`
	Status    IssueStatus `json:"status"`
	Priority  Priority    `json:"priority"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (m *Milestone) Ref() Ref              { return Ref{Kind: KindMilestone, ID: m.ID} }
func (m *Milestone) CurrentStatus() Status { return m.Status }
func (m *Milestone) String() string        { return fmt.Sprintf("[%s] %s", m.Key, m.Title) }
func (*Milestone) isEntity()               {}

// Issue is an epic or a work item. Type selects which.
type Issue struct {
	ID              int64       `json:"id"`
	ProjectID       int64       `json:"project_id"`
	Type            Kind        `json:"type"`
	Key             string      `json:"key"`
	Title           string      `json:"title"`
	Status          IssueStatus `json:"status"`
	Priority        Priority    `json:"priority"`
	EstimatedPoints *int        `json:"estimated_points,omitempty"`
	ParentID        *int64      `json:"parent_id,omitempty"`
	Position        int         `json:"position"`
	MilestoneID     *int64      `json:"milestone_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (i *Issue) Ref() Ref              { return Ref{Kind: i.Type, ID: i.ID} }
func (i *Issue) CurrentStatus() Status { return i.Status }
func (i *Issue) String() string        { return fmt.Sprintf("[%s] %s", i.Key, i.Title) }
func (*Issue) isEntity()               {}

// AsParent returns the subtask parent reference for a work item.
func (i *Issue) AsParent() (ParentRef, bool) {
	p, err := NewParentRef(i.Type, i.ID)
	return p, err == nil
}

type Subtask struct {
	ID        int64         `json:"id"`
	Parent    ParentRef     `json:"parent"`
	Title     string        `json:"title"`
	Status    SubtaskStatus `json:"status"`
	Position  int           `json:"position"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (s *Subtask) Ref() Ref              { return Ref{Kind: KindSubtask, ID: s.ID} }
func (s *Subtask) CurrentStatus() Status { return s.Status }
func (s *Subtask) String() string        { return s.Title }
func (*Subtask) isEntity()               {}

// ParentRef is the work item a subtask hangs off: Story(id), Bug(id) or
// Chore(id). The zero value refers to nothing.
type ParentRef struct {
	kind Kind
	id   int64
}

func StoryParent(id int64) ParentRef { return ParentRef{kind: KindStory, id: id} }
func BugParent(id int64) ParentRef   { return ParentRef{kind: KindBug, id: id} }
func ChoreParent(id int64) ParentRef { return ParentRef{kind: KindChore, id: id} }

func NewParentRef(kind Kind, id int64) (ParentRef, error) {
	switch kind {
	case KindStory:
		return StoryParent(id), nil
	case KindBug:
		return BugParent(id), nil
	case KindChore:
		return ChoreParent(id), nil
	}
	return ParentRef{}, fmt.Errorf("%w: %s cannot own subtasks", ErrInvalidParent, kind)
}

func (p ParentRef) Kind() Kind   { return p.kind }
func (p ParentRef) ID() int64    { return p.id }
func (p ParentRef) Ref() Ref     { return Ref{Kind: p.kind, ID: p.id} }
func (p ParentRef) IsZero() bool { return p.kind == "" }

func (p ParentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Ref())
}

func (p *ParentRef) UnmarshalJSON(data []byte) error {
	var r Ref
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	parsed, err := NewParentRef(r.Kind, r.ID)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type TreeNode struct {
	Entity   Entity     `json:"entity"`
	Progress *Progress  `json:"progress,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}
