package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/satyaki-up/matorral/internal/issues"
)

const scopeName = "github.com/satyaki-up/matorral/cascade"

type Engine struct {
	store  Store
	logger *slog.Logger

	previews metric.Int64Counter
	applied  metric.Int64Counter
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	m := otel.Meter(scopeName)
	previews, _ := m.Int64Counter("mt.cascade.previews",
		metric.WithDescription("Cascade checks computed"),
	)
	applied, _ := m.Int64Counter("mt.cascade.applied_rows",
		metric.WithDescription("Rows whose status was changed by an applied cascade"),
	)
	return &Engine{store: store, logger: logger, previews: previews, applied: applied}
}

// Children returns the direct cascade children of ent.
func (e *Engine) Children(ctx context.Context, ent issues.Entity) (Children, error) {
	switch v := ent.(type) {
	case *issues.Project:
		milestones, err := e.store.Milestones(ctx, v.ID)
		if err != nil {
			return Children{}, err
		}
		epics, err := e.store.OrphanEpics(ctx, v.ID)
		if err != nil {
			return Children{}, err
		}
		items := append(milestoneEntities(milestones), issueEntities(epics)...)
		return Children{Kind: ChildMixed, Items: items}, nil
	case *issues.Milestone:
		epics, err := e.store.MilestoneEpics(ctx, v.ID)
		if err != nil {
			return Children{}, err
		}
		return Children{Kind: ChildIssue, Items: issueEntities(epics)}, nil
	case *issues.Issue:
		if parent, ok := v.AsParent(); ok {
			subtasks, err := e.store.Subtasks(ctx, parent)
			if err != nil {
				return Children{}, err
			}
			return Children{Kind: ChildSubtask, Items: subtaskEntities(subtasks)}, nil
		}
		children, err := e.store.Children(ctx, v.ID)
		if err != nil {
			return Children{}, err
		}
		return Children{Kind: ChildIssue, Items: issueEntities(children)}, nil
	default:
		return Children{Kind: ChildNone}, nil
	}
}

// ParentAndSiblings returns the entity a cascade up would target and the
// other children of that parent. Projects and root work items have no parent.
func (e *Engine) ParentAndSiblings(ctx context.Context, ent issues.Entity) (issues.Entity, []issues.Entity, error) {
	switch v := ent.(type) {
	case *issues.Subtask:
		parent, err := e.store.GetIssue(ctx, v.Parent.ID())
		if err != nil {
			return nil, nil, err
		}
		all, err := e.store.Subtasks(ctx, v.Parent)
		if err != nil {
			return nil, nil, err
		}
		return parent, without(subtaskEntities(all), v.Ref()), nil

	case *issues.Issue:
		switch {
		case v.ParentID != nil:
			parent, err := e.store.GetIssue(ctx, *v.ParentID)
			if err != nil {
				return nil, nil, err
			}
			all, err := e.store.Children(ctx, parent.ID)
			if err != nil {
				return nil, nil, err
			}
			return parent, without(issueEntities(all), v.Ref()), nil
		case v.Type == issues.KindEpic && v.MilestoneID != nil:
			parent, err := e.store.GetMilestone(ctx, *v.MilestoneID)
			if err != nil {
				return nil, nil, err
			}
			all, err := e.store.MilestoneEpics(ctx, parent.ID)
			if err != nil {
				return nil, nil, err
			}
			return parent, without(issueEntities(all), v.Ref()), nil
		case v.Type == issues.KindEpic:
			return e.projectAndSiblings(ctx, v.ProjectID, v.Ref())
		default:
			return nil, nil, nil
		}

	case *issues.Milestone:
		return e.projectAndSiblings(ctx, v.ProjectID, v.Ref())

	default:
		return nil, nil, nil
	}
}

func (e *Engine) projectAndSiblings(ctx context.Context, projectID int64, self issues.Ref) (issues.Entity, []issues.Entity, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	children, err := e.Children(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	return project, without(children.Items, self), nil
}

// Check computes the cascade opportunities opened by ent moving to
// newStatus. ent is expected to already hold newStatus in storage.
func (e *Engine) Check(ctx context.Context, ent issues.Entity, newStatus issues.Status) (*Info, error) {
	if newStatus == nil || !newStatus.Valid() || newStatus.Family() != familyOf(ent) {
		return nil, fmt.Errorf("%w: %v is not a valid status for %s", issues.ErrInvalidStatus, newStatus, ent.Ref())
	}

	down, err := e.checkDown(ctx, ent, newStatus)
	if err != nil {
		return nil, err
	}
	up, err := e.checkUp(ctx, ent, newStatus)
	if err != nil {
		return nil, err
	}
	info := &Info{Down: down, Up: up}

	e.previews.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mt.kind", string(ent.Ref().Kind)),
		attribute.Bool("mt.cascade.offered", info.HasCascade()),
	))
	if info.HasCascade() {
		attrs := []any{"entity", ent.Ref().String(), "status", newStatus.String()}
		if down != nil {
			attrs = append(attrs, "down_groups", len(down.Groups), "down_items", down.TotalCount())
		}
		if up != nil {
			attrs = append(attrs, "up_parent", up.Parent.Ref().String(), "up_status", up.SuggestedStatus.String())
		}
		e.logger.Debug("cascade offered", attrs...)
	}
	return info, nil
}

// CheckBulk merges the checks of several entities moving to the same status.
// Down groups are merged per model with each id listed once; entities being
// changed directly are left out of the groups. The first up suggestion wins.
func (e *Engine) CheckBulk(ctx context.Context, ents []issues.Entity, newStatus issues.Status) (*Info, error) {
	direct := make(map[issues.Model]map[int64]bool)
	for _, ent := range ents {
		ref := ent.Ref()
		m := ref.Kind.Model()
		if direct[m] == nil {
			direct[m] = make(map[int64]bool)
		}
		direct[m][ref.ID] = true
	}

	merged := &Info{}
	byModel := make(map[issues.Model]*Group)
	seen := make(map[issues.Model]map[int64]bool)
	for _, ent := range ents {
		info, err := e.Check(ctx, ent, newStatus)
		if err != nil {
			return nil, err
		}
		if merged.Up == nil && info.Up != nil {
			merged.Up = info.Up
		}
		if info.Down == nil {
			continue
		}
		for _, g := range info.Down.Groups {
			dst, ok := byModel[g.Model]
			if !ok {
				dst = &Group{Model: g.Model, TargetStatus: g.TargetStatus}
				byModel[g.Model] = dst
				seen[g.Model] = make(map[int64]bool)
			}
			for _, it := range g.Items {
				id := it.Ref().ID
				if seen[g.Model][id] || direct[g.Model][id] {
					continue
				}
				seen[g.Model][id] = true
				dst.Items = append(dst.Items, it)
			}
		}
	}

	var groups []Group
	for _, m := range groupOrder {
		if g, ok := byModel[m]; ok && len(g.Items) > 0 {
			groups = append(groups, *g)
		}
	}
	if len(groups) > 0 {
		merged.Down = &Down{Groups: groups}
	}
	return merged, nil
}

var groupOrder = []issues.Model{issues.ModelMilestone, issues.ModelIssue, issues.ModelSubtask}

func (e *Engine) checkDown(ctx context.Context, ent issues.Entity, newStatus issues.Status) (*Down, error) {
	cat := newStatus.Category()
	if cat != issues.CategoryInProgress && cat != issues.CategoryDone {
		return nil, nil
	}

	w := newWalk()
	if err := e.walk(ctx, ent, w); err != nil {
		return nil, err
	}

	// Subtasks of a descendant work item follow only when that work item
	// does. The changed entity's own subtasks are always considered.
	eligibleIssues := make(map[int64]bool)
	var groups []Group
	for _, m := range groupOrder {
		target := MapStatusDown(newStatus, m.Family())
		if target == nil {
			continue
		}
		var eligible []issues.Entity
		for _, it := range w.items[m] {
			if it.CurrentStatus().Category().Rank() >= target.Category().Rank() {
				continue
			}
			if st, ok := it.(*issues.Subtask); ok {
				owner := st.Parent.ID()
				if w.seen[issues.ModelIssue][owner] && !eligibleIssues[owner] {
					continue
				}
			}
			if m == issues.ModelIssue {
				eligibleIssues[it.Ref().ID] = true
			}
			eligible = append(eligible, it)
		}
		if len(eligible) > 0 {
			groups = append(groups, Group{Model: m, TargetStatus: target, Items: eligible})
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return &Down{Groups: groups}, nil
}

func (e *Engine) checkUp(ctx context.Context, ent issues.Entity, newStatus issues.Status) (*Up, error) {
	cat := newStatus.Category()
	if cat != issues.CategoryInProgress && cat != issues.CategoryDone {
		return nil, nil
	}
	parent, siblings, err := e.ParentAndSiblings(ctx, ent)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	suggested := MapStatusUp(newStatus, parent)
	if suggested == nil {
		return nil, nil
	}
	if parent.CurrentStatus().Category().Rank() >= suggested.Category().Rank() {
		return nil, nil
	}
	if cat == issues.CategoryDone {
		for _, s := range siblings {
			if s.CurrentStatus().Category() != issues.CategoryDone {
				return nil, nil
			}
		}
	}
	return &Up{Parent: parent, SuggestedStatus: suggested, Model: parent.Ref().Kind.Model()}, nil
}

// walk collects every descendant of ent, once each, bucketed by table.
type walk struct {
	items map[issues.Model][]issues.Entity
	seen  map[issues.Model]map[int64]bool
}

func newWalk() *walk {
	return &walk{
		items: make(map[issues.Model][]issues.Entity),
		seen:  make(map[issues.Model]map[int64]bool),
	}
}

func (w *walk) add(ent issues.Entity) bool {
	ref := ent.Ref()
	m := ref.Kind.Model()
	if w.seen[m] == nil {
		w.seen[m] = make(map[int64]bool)
	}
	if w.seen[m][ref.ID] {
		return false
	}
	w.seen[m][ref.ID] = true
	w.items[m] = append(w.items[m], ent)
	return true
}

func (e *Engine) walk(ctx context.Context, ent issues.Entity, w *walk) error {
	switch v := ent.(type) {
	case *issues.Project:
		milestones, err := e.store.Milestones(ctx, v.ID)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			w.add(m)
		}
		epics, err := e.store.ProjectEpics(ctx, v.ID)
		if err != nil {
			return err
		}
		roots, err := e.store.RootWorkItems(ctx, v.ID)
		if err != nil {
			return err
		}
		return e.walkIssues(ctx, append(epics, roots...), w)
	case *issues.Milestone:
		epics, err := e.store.MilestoneEpics(ctx, v.ID)
		if err != nil {
			return err
		}
		return e.walkIssues(ctx, epics, w)
	case *issues.Issue:
		return e.walkIssueBelow(ctx, v, w)
	default:
		return nil
	}
}

func (e *Engine) walkIssues(ctx context.Context, list []*issues.Issue, w *walk) error {
	for _, is := range list {
		if !w.add(is) {
			continue
		}
		if err := e.walkIssueBelow(ctx, is, w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) walkIssueBelow(ctx context.Context, is *issues.Issue, w *walk) error {
	if parent, ok := is.AsParent(); ok {
		subtasks, err := e.store.Subtasks(ctx, parent)
		if err != nil {
			return err
		}
		for _, st := range subtasks {
			w.add(st)
		}
		return nil
	}
	children, err := e.store.Children(ctx, is.ID)
	if err != nil {
		return err
	}
	return e.walkIssues(ctx, children, w)
}

func milestoneEntities(list []*issues.Milestone) []issues.Entity {
	out := make([]issues.Entity, len(list))
	for i, m := range list {
		out[i] = m
	}
	return out
}

func issueEntities(list []*issues.Issue) []issues.Entity {
	out := make([]issues.Entity, len(list))
	for i, is := range list {
		out[i] = is
	}
	return out
}

func subtaskEntities(list []*issues.Subtask) []issues.Entity {
	out := make([]issues.Entity, len(list))
	for i, st := range list {
		out[i] = st
	}
	return out
}

func without(list []issues.Entity, ref issues.Ref) []issues.Entity {
	out := make([]issues.Entity, 0, len(list))
	for _, it := range list {
		if it.Ref() != ref {
			out = append(out, it)
		}
	}
	return out
}
