package cascade

import "github.com/satyaki-up/matorral/internal/issues"

// outcome is what a status means independently of its enumeration.
type outcome int

const (
	outcomeNone outcome = iota
	outcomeStarted
	outcomeSucceeded
	outcomeCancelled
	outcomeArchived
)

func outcomeOf(s issues.Status) outcome {
	if s == nil || !s.Valid() {
		return outcomeNone
	}
	switch s.Category() {
	case issues.CategoryInProgress:
		return outcomeStarted
	case issues.CategoryDone:
	default:
		return outcomeNone
	}
	switch s {
	case issues.IssueWontDo, issues.SubtaskWontDo:
		return outcomeCancelled
	case issues.IssueArchived, issues.ProjectArchived:
		return outcomeArchived
	default:
		return outcomeSucceeded
	}
}

// statusFor returns the value of family f that expresses o, or nil.
func statusFor(f issues.Family, o outcome) issues.Status {
	switch f {
	case issues.FamilyIssue:
		switch o {
		case outcomeStarted:
			return issues.IssueInProgress
		case outcomeSucceeded:
			return issues.IssueDone
		case outcomeCancelled:
			return issues.IssueWontDo
		case outcomeArchived:
			return issues.IssueArchived
		}
	case issues.FamilyProject:
		switch o {
		case outcomeStarted:
			return issues.ProjectActive
		case outcomeSucceeded, outcomeCancelled:
			return issues.ProjectCompleted
		case outcomeArchived:
			return issues.ProjectArchived
		}
	case issues.FamilySubtask:
		switch o {
		case outcomeStarted:
			return issues.SubtaskInProgress
		case outcomeSucceeded, outcomeArchived:
			return issues.SubtaskDone
		case outcomeCancelled:
			return issues.SubtaskWontDo
		}
	}
	return nil
}

// MapStatusUp returns the status parent should be offered after one of its
// children moved to child. It returns nil when child is todo-category or the
// parent has no equivalent.
func MapStatusUp(child issues.Status, parent issues.Entity) issues.Status {
	if parent == nil {
		return nil
	}
	return statusFor(familyOf(parent), outcomeOf(child))
}

// MapStatusDown returns the status of family f closest to the parent's new
// status, or nil when parent is todo-category.
func MapStatusDown(parent issues.Status, f issues.Family) issues.Status {
	return statusFor(f, outcomeOf(parent))
}

func familyOf(e issues.Entity) issues.Family {
	switch e.(type) {
	case *issues.Project:
		return issues.FamilyProject
	case *issues.Milestone, *issues.Issue:
		return issues.FamilyIssue
	case *issues.Subtask:
		return issues.FamilySubtask
	}
	return ""
}
