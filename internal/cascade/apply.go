package cascade

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/satyaki-up/matorral/internal/issues"
)

// GroupChange is one confirmed down group. Model and Status are raw tags as
// submitted; Apply skips values it does not recognize.
type GroupChange struct {
	Model  issues.Model `json:"model"`
	IDs    []int64      `json:"ids"`
	Status string       `json:"status"`
}

type ParentChange struct {
	Model  issues.Model `json:"model"`
	ID     int64        `json:"id"`
	Status string       `json:"status"`
}

type ApplyRequest struct {
	Down  []GroupChange `json:"down,omitempty"`
	Up    *ParentChange `json:"up,omitempty"`
	Actor string        `json:"actor"`
}

func (r ApplyRequest) Empty() bool {
	return len(r.Down) == 0 && r.Up == nil
}

type ApplyResult struct {
	Updated int `json:"updated"`
	Groups  int `json:"groups"`
	Skipped int `json:"skipped"`
}

// RequestFromInfo turns a whole preview into an apply request.
func RequestFromInfo(info *Info, actor string) ApplyRequest {
	req := ApplyRequest{Actor: actor}
	if info == nil {
		return req
	}
	if info.Down != nil {
		for _, g := range info.Down.Groups {
			req.Down = append(req.Down, GroupChange{Model: g.Model, IDs: g.IDs(), Status: g.TargetStatus.String()})
		}
	}
	if info.Up != nil {
		req.Up = &ParentChange{
			Model:  info.Up.Model,
			ID:     info.Up.Parent.Ref().ID,
			Status: info.Up.SuggestedStatus.String(),
		}
	}
	return req
}

// Apply writes every group of req, down groups first. Groups are independent:
// a failing group does not stop the others, and its error is returned joined
// with any other failures. Malformed groups are counted as skipped.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	var res ApplyResult
	var errs []error

	groups := append([]GroupChange(nil), req.Down...)
	if req.Up != nil && req.Up.ID > 0 {
		groups = append(groups, GroupChange{Model: req.Up.Model, IDs: []int64{req.Up.ID}, Status: req.Up.Status})
	} else if req.Up != nil {
		res.Skipped++
	}

	for _, g := range groups {
		model, ok := issues.ParseModel(string(g.Model))
		if !ok || len(g.IDs) == 0 {
			res.Skipped++
			continue
		}
		target, err := issues.ParseStatus(model.Family(), g.Status)
		if err != nil {
			res.Skipped++
			continue
		}
		n, err := e.store.UpdateStatuses(ctx, model, g.IDs, target, req.Actor)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %s group: %w", model, err))
			continue
		}
		res.Groups++
		res.Updated += n
		e.applied.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("mt.model", string(model)),
			attribute.String("mt.status", target.String()),
		))
	}

	e.logger.Info("cascade applied",
		"actor", req.Actor,
		"groups", res.Groups,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, errors.Join(errs...)
}
