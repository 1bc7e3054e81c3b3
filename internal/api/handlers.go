package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"casewatch/internal/apperr"
)

// Handler serves the status API endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an API handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListCases handles GET /cases.
func (h *Handler) ListCases(w http.ResponseWriter, _ *http.Request) {
	statuses, err := h.svc.ListCases()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": statuses})
}

// GetCase handles GET /cases/{caseID}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	detail, err := h.svc.GetCase(caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("case not found: "+caseID))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetHistory handles GET /cases/{caseID}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	entries, err := h.svc.GetHistory(caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("history not found: "+caseID))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_id": caseID, "entries": entries})
}
