package issues

import "context"

// Tree returns the project's hierarchy: milestones with their epics first,
// then epics without a milestone, then work items outside any epic. Epics
// and milestones carry the weighted progress of their direct children.
func (s *Service) Tree(ctx context.Context, projectID int64) ([]TreeNode, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	issuesList, err := s.ListIssues(ctx, projectID)
	if err != nil {
		return nil, err
	}
	milestones, err := s.Milestones(ctx, projectID)
	if err != nil {
		return nil, err
	}

	children := make(map[int64][]*Issue)
	byMilestone := make(map[int64][]*Issue)
	var orphanEpics, rootItems []*Issue
	for _, is := range issuesList {
		switch {
		case is.ParentID != nil:
			children[*is.ParentID] = append(children[*is.ParentID], is)
		case is.Type == KindEpic && is.MilestoneID != nil:
			byMilestone[*is.MilestoneID] = append(byMilestone[*is.MilestoneID], is)
		case is.Type == KindEpic:
			orphanEpics = append(orphanEpics, is)
		default:
			rootItems = append(rootItems, is)
		}
	}

	var build func(*Issue) (TreeNode, error)
	build = func(is *Issue) (TreeNode, error) {
		node := TreeNode{Entity: is}
		if parent, ok := is.AsParent(); ok {
			subtasks, err := s.Subtasks(ctx, parent)
			if err != nil {
				return TreeNode{}, err
			}
			for _, st := range subtasks {
				node.Children = append(node.Children, TreeNode{Entity: st})
			}
			return node, nil
		}
		node.Progress = CalculateProgress(children[is.ID])
		for _, ch := range children[is.ID] {
			child, err := build(ch)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, child)
		}
		return node, nil
	}

	out := make([]TreeNode, 0, len(milestones)+len(orphanEpics)+len(rootItems))
	for _, m := range milestones {
		node := TreeNode{Entity: m, Progress: CalculateProgress(byMilestone[m.ID])}
		for _, epic := range byMilestone[m.ID] {
			child, err := build(epic)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
		out = append(out, node)
	}
	for _, is := range append(orphanEpics, rootItems...) {
		node, err := build(is)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}
