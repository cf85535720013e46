package export

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"rostercore/internal/core"
	"rostercore/internal/upstream"
)

// HTTPHandler exposes the roster, export, and headcount operations over REST.
type HTTPHandler struct {
	service   *core.Service
	scheduler Scheduler
	headcount *upstream.Fetcher
}

// NewHTTPHandler builds an HTTP handler for the given service. scheduler and
// headcount may be nil; their routes then answer 503.
func NewHTTPHandler(service *core.Service, scheduler Scheduler, headcount *upstream.Fetcher) *HTTPHandler {
	return &HTTPHandler{service: service, scheduler: scheduler, headcount: headcount}
}

// Register wires handler routes onto the supplied mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/people", h.handlePeople)
	mux.HandleFunc("/api/v1/people/", h.handlePerson)
	mux.HandleFunc("/api/v1/exports", h.handleExports)
	mux.HandleFunc("/api/v1/exports/", h.handleExport)
	mux.HandleFunc("/api/v1/headcount", h.handleHeadcount)
	mux.HandleFunc("/api/v1/headcount/refresh", h.handleHeadcountRefresh)
}

type personRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type violationPayload struct {
	Error      string            `json:"error"`
	Violations map[string]string `json:"violations"`
}

func (h *HTTPHandler) handlePeople(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		people := h.service.ListPeople(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"people":  people,
			"version": h.service.Version(r.Context()),
		})
	case http.MethodPost:
		var req personRequest
		if err := decodeBody(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		person := core.Person{FirstName: req.FirstName, LastName: req.LastName}
		created, res, err := h.service.CreatePerson(r.Context(), person)
		if err != nil {
			h.writeServiceError(w, res, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *HTTPHandler) handlePerson(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/people/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		person, ok := h.service.GetPerson(r.Context(), id)
		if !ok {
			writeError(w, http.StatusNotFound, "person not found")
			return
		}
		writeJSON(w, http.StatusOK, person)
	case http.MethodPut:
		var req personRequest
		if err := decodeBody(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		person := core.Person{FirstName: req.FirstName, LastName: req.LastName}
		person.ID = id
		updated, res, err := h.service.ReplacePerson(r.Context(), person)
		if err != nil {
			h.writeServiceError(w, res, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		removed, res, err := h.service.DeletePerson(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, res, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type exportRequest struct {
	Formats     []Format `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *HTTPHandler) handleExports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "export scheduler not configured")
		return
	}
	var req exportRequest
	if err := decodeBody(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := h.scheduler.EnqueueExport(r.Context(), Input{
		Formats:     req.Formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "export scheduler not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/exports/")
	record, ok := h.scheduler.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) handleHeadcount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.headcount == nil {
		writeError(w, http.StatusServiceUnavailable, "headcount fetcher not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.headcount.State())
}

func (h *HTTPHandler) handleHeadcountRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.headcount == nil {
		writeError(w, http.StatusServiceUnavailable, "headcount fetcher not configured")
		return
	}
	state, started := h.headcount.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"state":   state,
		"started": started,
	})
}

// writeServiceError maps service errors onto HTTP status codes. Blocking rule
// violations surface as 422 with per-field messages.
func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, res core.Result, err error) {
	var ruleErr core.RuleViolationError
	if errors.As(err, &ruleErr) {
		violations := ruleErr.Result.FieldViolations()
		if len(violations) == 0 {
			violations = res.FieldViolations()
		}
		writeJSON(w, http.StatusUnprocessableEntity, violationPayload{
			Error:      ruleErr.Error(),
			Violations: violations,
		})
		return
	}
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeBody(body io.Reader, dst any) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if err == io.EOF {
			return errors.New("request body required")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
