package ipc

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/crewforge/engine/internal/bus"
	"github.com/crewforge/engine/internal/decision"
	"github.com/crewforge/engine/internal/domain"
	"github.com/crewforge/engine/internal/orchestrator"
	"github.com/crewforge/engine/internal/store"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *bus.Bus
	Decisions    *decision.Store
	DB           *sql.DB
	TransRepo    *store.TransitionRepo
	AuditRepo    *store.AuditRepo
	Project      string
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetProject handles GET /api/v1/project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Status())
}

// ListTransitions handles GET /api/v1/project/transitions.
func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.TransRepo.ListByProject(r.Context(), h.DB, h.Project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

// ListAudit handles GET /api/v1/project/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.AuditRepo.ListByProject(r.Context(), h.DB, h.Project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// BusStats handles GET /api/v1/bus/stats.
func (h *Handler) BusStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Bus.Stats())
}

// BusHistory handles GET /api/v1/bus/history?limit=N.
func (h *Handler) BusHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Bus.History(limit))
}

// ListDecisions handles GET /api/v1/decisions (accepted records only).
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Decisions.ListAccepted())
}

// ResolveClarifications handles POST /api/v1/clarifications/resolve: the
// human-input channel recording that open clarifications were answered.
func (h *Handler) ResolveClarifications(w http.ResponseWriter, r *http.Request) {
	n := h.Orchestrator.ResolveClarifications(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"resolved": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := -1

	var ee *domain.EngineError
	if errors.As(err, &ee) {
		code = ee.Code
		switch ee.Code {
		case domain.ErrNotFound.Code, domain.ErrDecisionNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrValidation.Code, domain.ErrInvalidName.Code, domain.ErrUnknownKind.Code:
			status = http.StatusBadRequest
		case domain.ErrUnauthorized.Code:
			status = http.StatusForbidden
		case domain.ErrAlreadyStarted.Code, domain.ErrInvalidState.Code, domain.ErrImmutableRecord.Code:
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, APIError{Code: code, Message: err.Error()})
}
