package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/satyaki-up/matorral/internal/issues"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps the issues sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, issues.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, issues.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, issues.ErrInvalidInput),
		errors.Is(err, issues.ErrInvalidStatus),
		errors.Is(err, issues.ErrInvalidParent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
