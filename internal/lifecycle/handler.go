package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"triagecore/internal/analysis"
	"triagecore/internal/incidents"
)

const maxBodyBytes = 4 << 20

var validate = validator.New()

type SubmitRequest struct {
	Logs    string `json:"logs" validate:"required"`
	Metrics string `json:"metrics"`
}

type ActionRequest struct {
	IncidentID int64  `json:"incident_id" validate:"required,gt=0"`
	FixApplied string `json:"fix_applied" validate:"required"`
	NewLogs    string `json:"new_logs"`
}

type ResolveRequest struct {
	IncidentID      int64  `json:"incident_id" validate:"required,gt=0"`
	ResolutionNotes string `json:"resolution_notes"`
}

type IncidentResponse struct {
	IncidentID          int64                    `json:"incident_id"`
	Status              incidents.Status         `json:"status"`
	SuspectedRootCauses []string                 `json:"suspected_root_causes"`
	SuggestedFix        string                   `json:"suggested_fix"`
	Confidence          analysis.Confidence      `json:"confidence"`
	Explanation         string                   `json:"explanation"`
	SimilarIncidents    []SimilarIncident        `json:"similar_incidents"`
	AttemptedFixes      []incidents.AttemptedFix `json:"attempted_fixes"`
	WebSources          []analysis.WebSource     `json:"web_sources"`
	PoweredBy           string                   `json:"powered_by"`
}

type ActionResponse struct {
	IncidentID     int64               `json:"incident_id"`
	Status         incidents.Status    `json:"status"`
	Evaluation     analysis.Evaluation `json:"evaluation"`
	NextSuggestion *analysis.Diagnosis `json:"next_suggestion"`
}

type ResolveResponse struct {
	IncidentID int64            `json:"incident_id"`
	Status     incidents.Status `json:"status"`
	Message    string           `json:"message"`
}

// Handler exposes the controller over HTTP.
type Handler struct {
	Controller *Controller
	Logger     *slog.Logger
}

func NewSubmitResponse(res *SubmitResult) IncidentResponse {
	return IncidentResponse{
		IncidentID:          res.Incident.ID,
		Status:              res.Incident.Status,
		SuspectedRootCauses: res.Diagnosis.SuspectedRootCauses,
		SuggestedFix:        res.Diagnosis.SuggestedFix,
		Confidence:          res.Diagnosis.Confidence,
		Explanation:         res.Diagnosis.Explanation,
		SimilarIncidents:    res.Similar,
		AttemptedFixes:      res.Incident.AttemptedFixes,
		WebSources:          res.Diagnosis.WebSources,
		PoweredBy:           res.Diagnosis.PoweredBy,
	}
}

func NewActionResponse(res *ActionResult) ActionResponse {
	return ActionResponse{
		IncidentID:     res.Incident.ID,
		Status:         res.Incident.Status,
		Evaluation:     res.Evaluation,
		NextSuggestion: res.NextSuggestion,
	}
}

func NewResolveResponse(res *ResolveResult) ResolveResponse {
	msg := "Incident resolved and stored in memory for future reference"
	if res.AlreadyResolved {
		msg = "Incident was already resolved"
	}
	return ResolveResponse{
		IncidentID: res.Incident.ID,
		Status:     res.Incident.Status,
		Message:    msg,
	}
}

// Submit handles POST /incident.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Controller.Submit(r.Context(), req.Logs, req.Metrics)
	if err != nil {
		h.fail(w, "submit incident", err)
		return
	}
	writeJSON(w, http.StatusOK, NewSubmitResponse(res))
}

// Action handles POST /action.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Controller.ApplyFix(r.Context(), req.IncidentID, req.FixApplied, req.NewLogs)
	if err != nil {
		h.fail(w, "apply fix", err)
		return
	}
	writeJSON(w, http.StatusOK, NewActionResponse(res))
}

// Resolve handles POST /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Controller.Resolve(r.Context(), req.IncidentID, req.ResolutionNotes)
	if err != nil {
		h.fail(w, "resolve incident", err)
		return
	}
	writeJSON(w, http.StatusOK, NewResolveResponse(res))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	incs, err := h.Controller.List(r.Context())
	if err != nil {
		h.fail(w, "list incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incs,
		"total":     len(incs),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inc, err := h.Controller.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get incident", err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Controller.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete incident", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Incident %d deleted", id)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// fail maps controller errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		writeError(w, http.StatusNotFound, "Incident not found")
	case errors.Is(err, incidents.ErrAlreadyResolved):
		writeError(w, http.StatusBadRequest, "Incident already resolved")
	case errors.Is(err, incidents.ErrConflict):
		writeError(w, http.StatusConflict, "Incident was modified concurrently, retry")
	default:
		h.Logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
	}
	return "invalid request"
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
