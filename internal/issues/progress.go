package issues

import "math"

// Progress is the weighted split of a set of issues across categories.
// Each issue weighs its estimated points, or 1 when unestimated.
type Progress struct {
	TodoPct          int `json:"todo_pct"`
	InProgressPct    int `json:"in_progress_pct"`
	DonePct          int `json:"done_pct"`
	TodoWeight       int `json:"todo_weight"`
	InProgressWeight int `json:"in_progress_weight"`
	DoneWeight       int `json:"done_weight"`
	TotalWeight      int `json:"total_weight"`
}

// CalculateProgress returns nil when there is nothing to weigh.
func CalculateProgress(children []*Issue) *Progress {
	var todo, inProgress, done int
	for _, child := range children {
		weight := 1
		if child.EstimatedPoints != nil && *child.EstimatedPoints > 0 {
			weight = *child.EstimatedPoints
		}
		switch child.Status.Category() {
		case CategoryInProgress:
			inProgress += weight
		case CategoryDone:
			done += weight
		default:
			todo += weight
		}
	}
	return buildProgress(done, inProgress, todo)
}

func buildProgress(done, inProgress, todo int) *Progress {
	total := done + inProgress + todo
	if total == 0 {
		return nil
	}
	donePct := roundHalfEven(float64(done) / float64(total) * 100)
	inProgressPct := roundHalfEven(float64(inProgress) / float64(total) * 100)
	return &Progress{
		TodoPct:          100 - donePct - inProgressPct,
		InProgressPct:    inProgressPct,
		DonePct:          donePct,
		TodoWeight:       todo,
		InProgressWeight: inProgress,
		DoneWeight:       done,
		TotalWeight:      total,
	}
}

func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}
