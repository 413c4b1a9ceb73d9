package triageapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/citycare/internal/triage"
)

func (a *API) handleScorePriority(w http.ResponseWriter, r *http.Request) {
	var req triage.PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "title or description is required")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("citycare.report.id", req.ReportID),
		attribute.Bool("citycare.triage.force", req.Force),
	)

	pa := a.svc.ScorePriority(r.Context(), req)
	span.SetAttributes(attribute.Int("citycare.triage.priority", pa.Priority))
	writeJSON(w, http.StatusOK, pa)
}

func (a *API) handleScoreReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid force parameter")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("citycare.report.id", id),
		attribute.Bool("citycare.triage.force", force),
	)

	pa, err := a.svc.ScoreReport(r.Context(), id, force)
	switch {
	case errors.Is(err, triage.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to score report", "report_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	span.SetAttributes(attribute.Int("citycare.triage.priority", pa.Priority))
	writeJSON(w, http.StatusOK, pa)
}

func (a *API) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req triage.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sug, err := a.svc.SuggestMetadata(r.Context(), req)
	switch {
	case errors.Is(err, triage.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "description is required")
		return
	case err != nil:
		// the service has already logged and audited the failure
		writeRetryable(w, "suggestion unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func (a *API) handleHelpPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid force parameter")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("citycare.report.id", id))

	plan, err := a.svc.PlanReport(r.Context(), id, force)
	switch {
	case errors.Is(err, triage.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return
	case errors.Is(err, triage.ErrUnavailable):
		writeRetryable(w, "help plan unavailable")
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to generate help plan", "report_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	span.SetAttributes(attribute.Int("citycare.plan.steps", len(plan.Steps)))
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	recs, err := a.audit.AuditTrail(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to read audit trail", "report_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []triage.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
