package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
)

const defaultActor = "api"

type CascadeHandler struct {
	svc    *issues.Service
	engine *cascade.Engine
	logger *slog.Logger
}

func NewCascadeHandler(svc *issues.Service, engine *cascade.Engine, logger *slog.Logger) *CascadeHandler {
	return &CascadeHandler{svc: svc, engine: engine, logger: logger}
}

type previewResponse struct {
	Ref        issues.Ref     `json:"ref"`
	Status     string         `json:"status"`
	HasCascade bool           `json:"has_cascade"`
	Dialog     cascade.Dialog `json:"dialog"`
	// Form holds the fields to POST back to the apply endpoint.
	Form     map[string]string `json:"form,omitempty"`
	ApplyURL string            `json:"apply_url"`
}

type statusRequest struct {
	Kind   issues.Kind `json:"kind"`
	ID     int64       `json:"id"`
	Status string      `json:"status"`
}

type statusResponse struct {
	Entity  issues.Entity   `json:"entity"`
	Preview previewResponse `json:"cascade"`
}

// Preview handles GET /w/{workspace}/cascade/preview?kind=&id=&status=
func (h *CascadeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := issues.ParseKind(strings.TrimSpace(q.Get("kind")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	ent, err := h.loadScoped(r.Context(), issues.Ref{Kind: kind, ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status, err := issues.ParseStatus(kind.Model().Family(), q.Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.preview(r, ent, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetStatus handles POST /w/{workspace}/status. The new status is stored
// first; the response carries the cascade it opens.
func (h *CascadeHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ref := issues.Ref{Kind: req.Kind, ID: req.ID}
	if _, err := issues.ParseKind(string(req.Kind)); err != nil {
		writeServiceError(w, err)
		return
	}
	if _, err := h.loadScoped(r.Context(), ref); err != nil {
		writeServiceError(w, err)
		return
	}
	ent, err := h.svc.SetStatus(r.Context(), ref, req.Status, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	preview, err := h.preview(r, ent, ent.CurrentStatus())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Entity: ent, Preview: preview})
}

// Apply handles POST /w/{workspace}/cascade/apply with the dialog's form
// fields. It answers 204 whether or not anything changed.
func (h *CascadeHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	req := cascade.ParseForm(r.PostForm)
	req.Actor = actorFrom(r)
	if err := h.scope(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := h.engine.Apply(r.Context(), req)
	if err != nil {
		h.logger.Error("cascade apply", "request_id", requestIDFrom(r.Context()), "error", err)
		writeServiceError(w, err)
		return
	}
	w.Header().Set("X-Cascade-Updated", strconv.Itoa(res.Updated))
	w.WriteHeader(http.StatusNoContent)
}

func (h *CascadeHandler) preview(r *http.Request, ent issues.Entity, status issues.Status) (previewResponse, error) {
	info, err := h.engine.Check(r.Context(), ent, status)
	if err != nil {
		return previewResponse{}, err
	}
	dialog := cascade.BuildDialog(info)
	resp := previewResponse{
		Ref:        ent.Ref(),
		Status:     status.String(),
		HasCascade: info.HasCascade(),
		Dialog:     dialog,
		ApplyURL:   fmt.Sprintf("/w/%s/cascade/apply", workspaceFrom(r.Context()).Slug),
	}
	if resp.HasCascade {
		resp.Form = make(map[string]string)
		for k, v := range dialog.FormValues() {
			resp.Form[k] = v[0]
		}
	}
	return resp, nil
}

// loadScoped loads ref and hides it unless it belongs to the request's
// workspace.
func (h *CascadeHandler) loadScoped(ctx context.Context, ref issues.Ref) (issues.Entity, error) {
	ent, err := h.svc.GetEntity(ctx, ref)
	if err != nil {
		return nil, err
	}
	wsID, err := h.svc.WorkspaceOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ws := workspaceFrom(ctx); ws == nil || ws.ID != wsID {
		return nil, fmt.Errorf("%w: %s not found", issues.ErrNotFound, ref)
	}
	return ent, nil
}

// scope removes ids that do not belong to the request's workspace. Apply
// skips unknown ids anyway; this keeps one tenant's form from writing
// another's rows.
func (h *CascadeHandler) scope(ctx context.Context, req *cascade.ApplyRequest) error {
	ws := workspaceFrom(ctx)
	if ws == nil {
		return fmt.Errorf("%w: workspace", issues.ErrNotFound)
	}
	down := req.Down[:0]
	for _, g := range req.Down {
		kept, dropped, err := h.svc.InWorkspace(ctx, ws.ID, g.Model, g.IDs)
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			h.logger.Warn("cascade apply outside workspace",
				"request_id", requestIDFrom(ctx), "workspace", ws.Slug, "model", g.Model, "ids", dropped)
		}
		if len(kept) > 0 {
			g.IDs = kept
			down = append(down, g)
		}
	}
	req.Down = down

	if req.Up != nil {
		kept, _, err := h.svc.InWorkspace(ctx, ws.ID, req.Up.Model, []int64{req.Up.ID})
		if err != nil {
			return err
		}
		if len(kept) == 0 {
			h.logger.Warn("cascade apply outside workspace",
				"request_id", requestIDFrom(ctx), "workspace", ws.Slug, "model", req.Up.Model, "ids", []int64{req.Up.ID})
			req.Up = nil
		}
	}
	return nil
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return defaultActor
}
