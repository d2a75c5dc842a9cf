package issues

import "fmt"

func IsValidIssueType(k Kind) bool {
	return k.IsIssue()
}

// expectedParentType returns the only kind allowed as tree parent of k.
// Epics are always roots; work items may sit under an epic or at the root.
func expectedParentType(k Kind) (Kind, bool) {
	switch {
	case k.IsWorkItem():
		return KindEpic, true
	default:
		return "", false
	}
}

func validateTreeParent(child Kind, parent *Issue, projectID int64) error {
	want, ok := expectedParentType(child)
	if !ok {
		return fmt.Errorf("%w: %s cannot have a parent", ErrInvalidParent, child)
	}
	if parent.Type != want {
		return fmt.Errorf("%w: %s requires parent type %s, got %s", ErrInvalidParent, child, want, parent.Type)
	}
	if parent.ProjectID != projectID {
		return fmt.Errorf("%w: parent issue must be in same project", ErrInvalidParent)
	}
	return nil
}

func validateMilestoneLink(child Kind, milestone *Milestone, projectID int64) error {
	if child != KindEpic {
		return fmt.Errorf("%w: only epics can be linked to a milestone", ErrInvalidInput)
	}
	if milestone.ProjectID != projectID {
		return fmt.Errorf("%w: milestone must be in same project", ErrInvalidInput)
	}
	return nil
}
