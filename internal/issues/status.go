package issues

import (
	"fmt"
	"strings"
)

// Category is the coarse bucket every status value falls into. Eligibility
// and gating decisions compare categories, never raw values.
type Category string

const (
	CategoryTodo       Category = "todo"
	CategoryInProgress Category = "in_progress"
	CategoryDone       Category = "done"
)

// Rank orders categories along the lifecycle: todo < in_progress < done.
func (c Category) Rank() int {
	switch c {
	case CategoryTodo:
		return 0
	case CategoryInProgress:
		return 1
	case CategoryDone:
		return 2
	default:
		return -1
	}
}

// Family names a status enumeration. Milestones share the issue family.
type Family string

const (
	FamilyProject Family = "project"
	FamilyIssue   Family = "issue"
	FamilySubtask Family = "subtask"
)

// Status is a value from one of the three enumerations.
type Status interface {
	fmt.Stringer
	Family() Family
	Category() Category
	Label() string
	Valid() bool
}

type statusInfo struct {
	label    string
	category Category
}

type IssueStatus string

const (
	IssueDraft      IssueStatus = "draft"
	IssuePlanning   IssueStatus = "planning"
	IssueReady      IssueStatus = "ready"
	IssueInProgress IssueStatus = "in_progress"
	IssueBlocked    IssueStatus = "blocked"
	IssueInReview   IssueStatus = "in_review"
	IssueDone       IssueStatus = "done"
	IssueWontDo     IssueStatus = "wont_do"
	IssueArchived   IssueStatus = "archived"
)

var issueStatuses = []IssueStatus{
	IssueDraft, IssuePlanning, IssueReady,
	IssueInProgress, IssueBlocked, IssueInReview,
	IssueDone, IssueWontDo, IssueArchived,
}

var issueStatusTable = map[IssueStatus]statusInfo{
	IssueDraft:      {"Draft", CategoryTodo},
	IssuePlanning:   {"Planning", CategoryTodo},
	IssueReady:      {"Ready", CategoryTodo},
	IssueInProgress: {"In Progress", CategoryInProgress},
	IssueBlocked:    {"Blocked", CategoryInProgress},
	IssueInReview:   {"In Review", CategoryInProgress},
	IssueDone:       {"Done", CategoryDone},
	IssueWontDo:     {"Won't Do", CategoryDone},
	IssueArchived:   {"Archived", CategoryDone},
}

func (s IssueStatus) String() string     { return string(s) }
func (s IssueStatus) Family() Family     { return FamilyIssue }
func (s IssueStatus) Category() Category { return issueStatusTable[s].category }
func (s IssueStatus) Valid() bool        { return issueStatusTable[s].category != "" }
func (s IssueStatus) Label() string      { return labelOr(issueStatusTable[s].label, string(s)) }
func IssueStatuses() []IssueStatus       { return append([]IssueStatus(nil), issueStatuses...) }

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

var projectStatuses = []ProjectStatus{ProjectDraft, ProjectActive, ProjectCompleted, ProjectArchived}

var projectStatusTable = map[ProjectStatus]statusInfo{
	ProjectDraft:     {"Draft", CategoryTodo},
	ProjectActive:    {"Active", CategoryInProgress},
	ProjectCompleted: {"Completed", CategoryDone},
	ProjectArchived:  {"Archived", CategoryDone},
}

func (s ProjectStatus) String() string     { return string(s) }
func (s ProjectStatus) Family() Family     { return FamilyProject }
func (s ProjectStatus) Category() Category { return projectStatusTable[s].category }
func (s ProjectStatus) Valid() bool        { return projectStatusTable[s].category != "" }
func (s ProjectStatus) Label() string      { return labelOr(projectStatusTable[s].label, string(s)) }
func ProjectStatuses() []ProjectStatus     { return append([]ProjectStatus(nil), projectStatuses...) }

type SubtaskStatus string

const (
	SubtaskTodo       SubtaskStatus = "todo"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskDone       SubtaskStatus = "done"
	SubtaskWontDo     SubtaskStatus = "wont_do"
)

var subtaskStatuses = []SubtaskStatus{SubtaskTodo, SubtaskInProgress, SubtaskDone, SubtaskWontDo}

var subtaskStatusTable = map[SubtaskStatus]statusInfo{
	SubtaskTodo:       {"To Do", CategoryTodo},
	SubtaskInProgress: {"In Progress", CategoryInProgress},
	SubtaskDone:       {"Done", CategoryDone},
	SubtaskWontDo:     {"Won't Do", CategoryDone},
}

func (s SubtaskStatus) String() string     { return string(s) }
func (s SubtaskStatus) Family() Family     { return FamilySubtask }
func (s SubtaskStatus) Category() Category { return subtaskStatusTable[s].category }
func (s SubtaskStatus) Valid() bool        { return subtaskStatusTable[s].category != "" }
func (s SubtaskStatus) Label() string      { return labelOr(subtaskStatusTable[s].label, string(s)) }
func SubtaskStatuses() []SubtaskStatus     { return append([]SubtaskStatus(nil), subtaskStatuses...) }

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}

// ParseStatus validates raw against the enumeration of the given family.
func ParseStatus(f Family, raw string) (Status, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	var s Status
	switch f {
	case FamilyProject:
		s = ProjectStatus(raw)
	case FamilyIssue:
		s = IssueStatus(raw)
	case FamilySubtask:
		s = SubtaskStatus(raw)
	default:
		return nil, fmt.Errorf("%w: unknown status family %q", ErrInvalidInput, f)
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q is not a %s status", ErrInvalidStatus, raw, f)
	}
	return s, nil
}
