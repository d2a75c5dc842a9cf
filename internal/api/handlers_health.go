package api

import (
	"net/http"

	"github.com/satyaki-up/matorral/internal/issues"
)

type HealthHandler struct {
	svc *issues.Service
}

func NewHealthHandler(svc *issues.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", DB: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", DB: "ok"})
}
