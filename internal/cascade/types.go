package cascade

import "github.com/satyaki-up/matorral/internal/issues"

// ChildKind describes what Children returned.
type ChildKind string

const (
	ChildMixed   ChildKind = "mixed"
	ChildIssue   ChildKind = "issue"
	ChildSubtask ChildKind = "subtask"
	ChildNone    ChildKind = "none"
)

type Children struct {
	Kind  ChildKind
	Items []issues.Entity
}

// Group is one batch of same-table descendants sharing a target status.
type Group struct {
	Model        issues.Model    `json:"model"`
	TargetStatus issues.Status   `json:"target_status"`
	Items        []issues.Entity `json:"items"`
}

func (g Group) IDs() []int64 {
	ids := make([]int64, len(g.Items))
	for i, it := range g.Items {
		ids[i] = it.Ref().ID
	}
	return ids
}

// Down is a non-empty cascade-down proposal. Groups are ordered milestone,
// issue, subtask.
type Down struct {
	Groups []Group `json:"groups"`
}

func (d *Down) TotalCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Items)
	}
	return n
}

func (d *Down) AllItems() []issues.Entity {
	out := make([]issues.Entity, 0, d.TotalCount())
	for _, g := range d.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// Up proposes advancing the parent to SuggestedStatus.
type Up struct {
	Parent          issues.Entity `json:"parent"`
	SuggestedStatus issues.Status `json:"suggested_status"`
	Model           issues.Model  `json:"model"`
}

// Info is the result of a check. Either side may be nil.
type Info struct {
	Down *Down `json:"cascade_down"`
	Up   *Up   `json:"cascade_up"`
}

func (i *Info) HasCascade() bool {
	return i != nil && (i.Down != nil || i.Up != nil)
}
