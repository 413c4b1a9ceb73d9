// Package triageapi exposes the triage operations over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/citycare/internal/cluster"
	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	ScorePriority(ctx context.Context, req triage.PriorityRequest) extract.PriorityAssessment
	ScoreReport(ctx context.Context, reportID string, force bool) (extract.PriorityAssessment, error)
	SuggestMetadata(ctx context.Context, req triage.SuggestRequest) (*extract.AssistSuggestion, error)
	PlanReport(ctx context.Context, reportID string, force bool) (*extract.HelpPlan, error)
}

// ClusterDetector finds groups of nearby reports.
type ClusterDetector interface {
	Detect(ctx context.Context, q cluster.Query) ([]cluster.Cluster, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	clusters ClusterDetector
	audit    triage.AuditReader
}

// New creates a new API handler. audit may be nil, in which case the audit
// trail route is not registered.
func New(logger log.Logger, svc TriageService, clusters ClusterDetector, audit triage.AuditReader) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if clusters == nil {
		panic(xerrors.New("cluster detector is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		clusters: clusters,
		audit:    audit,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/priority", a.handleScorePriority)
		r.Post("/assist", a.handleSuggest)
		r.Get("/clusters", a.handleClusters)
		r.Route("/reports/{id}", func(r chi.Router) {
			r.Post("/priority", a.handleScoreReport)
			r.Post("/help-plan", a.handleHelpPlan)
			if a.audit != nil {
				r.Get("/audit", a.handleAuditTrail)
			}
		})
	})
}

type errorBody struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeRetryable reports a failure the client can retry, such as the model
// provider being unavailable.
func writeRetryable(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadGateway, errorBody{Error: msg, Retry: true})
}

// forceParam reads the optional force query parameter.
func forceParam(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("force")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
