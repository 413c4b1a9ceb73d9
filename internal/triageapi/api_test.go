package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/citycare/internal/cluster"
	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/triage"
)

type mockService struct {
	mu         sync.Mutex
	priorities []triage.PriorityRequest
	forced     map[string]bool

	suggestErr error
	planErr    error
	scoreErr   error
}

func (m *mockService) ScorePriority(_ context.Context, req triage.PriorityRequest) extract.PriorityAssessment {
	m.mu.Lock()
	m.priorities = append(m.priorities, req)
	m.mu.Unlock()
	return extract.PriorityAssessment{Priority: 4, Reason: "Blocks a lane", Confidence: extract.ConfidenceHigh}
}

func (m *mockService) ScoreReport(_ context.Context, id string, force bool) (extract.PriorityAssessment, error) {
	m.mu.Lock()
	if m.forced == nil {
		m.forced = map[string]bool{}
	}
	m.forced[id] = force
	m.mu.Unlock()
	if m.scoreErr != nil {
		return extract.PriorityAssessment{}, m.scoreErr
	}
	if id == "missing" {
		return extract.PriorityAssessment{}, fmt.Errorf("%w: %s", triage.ErrReportNotFound, id)
	}
	return extract.PriorityAssessment{Priority: 5, Reason: "Gas smell", Confidence: extract.ConfidenceMed}, nil
}

func (m *mockService) SuggestMetadata(_ context.Context, req triage.SuggestRequest) (*extract.AssistSuggestion, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", triage.ErrInvalidRequest)
	}
	if m.suggestErr != nil {
		return nil, m.suggestErr
	}
	title := "Broken streetlight"
	return &extract.AssistSuggestion{Title: &title}, nil
}

func (m *mockService) PlanReport(_ context.Context, id string, _ bool) (*extract.HelpPlan, error) {
	if id == "missing" {
		return nil, fmt.Errorf("%w: %s", triage.ErrReportNotFound, id)
	}
	if m.planErr != nil {
		return nil, m.planErr
	}
	return &extract.HelpPlan{Steps: []string{"Cordon", "Inspect", "Repair"}, Summary: "Fix it"}, nil
}

type mockDetector struct {
	got      cluster.Query
	clusters []cluster.Cluster
	err      error
}

func (m *mockDetector) Detect(_ context.Context, q cluster.Query) ([]cluster.Cluster, error) {
	m.got = q
	return m.clusters, m.err
}

type mockAudit struct {
	recs []triage.AuditRecord
	err  error
}

func (m *mockAudit) AuditTrail(_ context.Context, reportID string) ([]triage.AuditRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []triage.AuditRecord
	for _, r := range m.recs {
		if r.ReportID == reportID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, svc *mockService, det *mockDetector, audit triage.AuditReader) chi.Router {
	t.Helper()
	api := New(log.Nop(), svc, det, audit)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &mockService{}, &mockDetector{}, nil)
	if api.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
}

func TestNew_NilDependencies_Panic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		svc  TriageService
		det  ClusterDetector
	}{
		{"nil service", nil, &mockDetector{}},
		{"nil detector", &mockService{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("New did not panic")
				}
			}()
			New(nil, tt.svc, tt.det, nil)
		})
	}
}

// Routing

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, &mockAudit{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"score priority", http.MethodPost, "/api/v1/priority", `{"report_id":"r1","title":"Pothole"}`, http.StatusOK},
		{"score report", http.MethodPost, "/api/v1/reports/r1/priority", "", http.StatusOK},
		{"assist", http.MethodPost, "/api/v1/assist", `{"description":"light out"}`, http.StatusOK},
		{"help plan", http.MethodPost, "/api/v1/reports/r1/help-plan", "", http.StatusOK},
		{"clusters", http.MethodGet, "/api/v1/clusters", "", http.StatusOK},
		{"audit", http.MethodGet, "/api/v1/reports/r1/audit", "", http.StatusOK},
		{"GET priority not allowed", http.MethodGet, "/api/v1/priority", "", http.StatusMethodNotAllowed},
		{"DELETE report priority not allowed", http.MethodDelete, "/api/v1/reports/r1/priority", "", http.StatusMethodNotAllowed},
		{"POST clusters not allowed", http.MethodPost, "/api/v1/clusters", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		{"root", http.MethodGet, "/", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NoAuditReader(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, nil)
	rec := do(t, r, http.MethodGet, "/api/v1/reports/r1/audit", "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("audit without reader = %d, want 404 or 405", rec.Code)
	}
}

// Priority

func TestScorePriority(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	r := newTestRouter(t, svc, &mockDetector{}, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/priority",
		`{"report_id":"r9","title":"Sinkhole","description":"Huge hole","category":"pothole","context":"near school","force":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := decode[map[string]any](t, rec)
	if got["priority"] != float64(4) || got["reason"] != "Blocks a lane" || got["confidence"] != "high" {
		t.Errorf("body = %v", got)
	}

	if len(svc.priorities) != 1 {
		t.Fatalf("service calls = %d, want 1", len(svc.priorities))
	}
	req := svc.priorities[0]
	if req.ReportID != "r9" || req.Context != "near school" || !req.Force || req.Category != "pothole" {
		t.Errorf("request = %+v", req)
	}
}

func TestScorePriority_BadRequests(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, nil)

	for _, body := range []string{`{bad`, `{"report_id":"r1"}`, `{"title":"  ","description":""}`} {
		rec := do(t, r, http.MethodPost, "/api/v1/priority", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestScoreReport(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	r := newTestRouter(t, svc, &mockDetector{}, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/reports/r1/priority?force=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[extract.PriorityAssessment](t, rec); got.Priority != 5 {
		t.Errorf("priority = %d, want 5", got.Priority)
	}
	if !svc.forced["r1"] {
		t.Error("force=true not passed through")
	}

	if rec := do(t, r, http.MethodPost, "/api/v1/reports/missing/priority", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing report = %d, want 404", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/api/v1/reports/r1/priority?force=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad force = %d, want 400", rec.Code)
	}
}

func TestScoreReport_StoreError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{scoreErr: errors.New("connection reset")}, &mockDetector{}, nil)
	rec := do(t, r, http.MethodPost, "/api/v1/reports/r1/priority", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error detail leaked to client")
	}
}

// Assist

func TestSuggest(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, nil)
	rec := do(t, r, http.MethodPost, "/api/v1/assist", `{"description":"the light on 3rd is out"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := decode[map[string]any](t, rec)
	if got["title"] != "Broken streetlight" {
		t.Errorf("title = %v", got["title"])
	}
	for _, k := range []string{"category", "summary", "lat", "lng"} {
		v, ok := got[k]
		if !ok {
			t.Errorf("key %q omitted, want explicit null", k)
		} else if v != nil {
			t.Errorf("%s = %v, want null", k, v)
		}
	}
}

func TestSuggest_Failures(t *testing.T) {
	t.Parallel()

	unavailable := fmt.Errorf("%w: llm: transport: dial tcp", triage.ErrUnavailable)
	r := newTestRouter(t, &mockService{suggestErr: unavailable}, &mockDetector{}, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/assist", `{"description":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty description = %d, want 400", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/assist", `{"description":"water everywhere"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("provider failure = %d, want 502", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if !body.Retry || body.Error == "" {
		t.Errorf("body = %+v, want retryable error", body)
	}
	if strings.Contains(rec.Body.String(), "dial tcp") {
		t.Error("provider detail leaked to client")
	}
}

// Help plan

func TestHelpPlan(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/reports/r1/help-plan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[extract.HelpPlan](t, rec); len(got.Steps) != 3 || got.Summary != "Fix it" {
		t.Errorf("plan = %+v", got)
	}

	if rec := do(t, r, http.MethodPost, "/api/v1/reports/missing/help-plan", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing report = %d, want 404", rec.Code)
	}
}

func TestHelpPlan_Unavailable(t *testing.T) {
	t.Parallel()

	svc := &mockService{planErr: fmt.Errorf("%w: too few steps", triage.ErrUnavailable)}
	r := newTestRouter(t, svc, &mockDetector{}, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/reports/r1/help-plan?force=1", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if body := decode[errorBody](t, rec); !body.Retry {
		t.Errorf("retry = false, want true")
	}
}

// Clusters

func TestClusters(t *testing.T) {
	t.Parallel()

	det := &mockDetector{clusters: []cluster.Cluster{
		{SeedReportID: "a", Lat: 40, Lng: -74, Category: "pothole", Size: 2, CreatedAt: time.Now()},
	}}
	r := newTestRouter(t, &mockService{}, det, nil)

	rec := do(t, r, http.MethodGet, "/api/v1/clusters?category=pothole&proximity_m=250&window_h=12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]cluster.Cluster](t, rec)
	if len(got) != 1 || got[0].SeedReportID != "a" || got[0].Size != 2 {
		t.Errorf("clusters = %+v", got)
	}
	want := cluster.Query{Category: "pothole", ProximityMeters: 250, WindowHours: 12}
	if det.got != want {
		t.Errorf("query = %+v, want %+v", det.got, want)
	}
}

func TestClusters_EmptyIsArray(t *testing.T) {
	t.Parallel()

	det := &mockDetector{}
	r := newTestRouter(t, &mockService{}, det, nil)

	rec := do(t, r, http.MethodGet, "/api/v1/clusters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
	if det.got.ProximityMeters != 0 || det.got.WindowHours != 0 {
		t.Errorf("query = %+v, want zero values for detector defaults", det.got)
	}
}

func TestClusters_BadParams(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, nil)

	for _, q := range []string{"proximity_m=abc", "proximity_m=-5", "window_h=0", "window_h=NaN", "proximity_m=Inf"} {
		rec := do(t, r, http.MethodGet, "/api/v1/clusters?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestClusters_DetectorError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{err: errors.New("db down")}, nil)
	if rec := do(t, r, http.MethodGet, "/api/v1/clusters", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// Audit

func TestAuditTrail(t *testing.T) {
	t.Parallel()

	audit := &mockAudit{recs: []triage.AuditRecord{
		{ID: "1", ReportID: "r1", Operation: triage.OpPriority, Outcome: triage.OutcomeSuccess, Priority: 3},
		{ID: "2", ReportID: "r2", Operation: triage.OpPriority, Outcome: triage.OutcomeFallback},
		{ID: "3", ReportID: "r1", Operation: triage.OpHelpPlan, Outcome: triage.OutcomeSuccess},
	}}
	r := newTestRouter(t, &mockService{}, &mockDetector{}, audit)

	rec := do(t, r, http.MethodGet, "/api/v1/reports/r1/audit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]triage.AuditRecord](t, rec)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("records = %+v", got)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/reports/none/audit", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty trail body = %q, want []", rec.Body.String())
	}
}

func TestAuditTrail_Error(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{}, &mockDetector{}, &mockAudit{err: errors.New("boom")})
	if rec := do(t, r, http.MethodGet, "/api/v1/reports/r1/audit", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// Tracing

func TestHandlers_AnnotateSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	api := New(log.Nop(), &mockService{}, &mockDetector{}, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx, span := tp.Tracer("test").Start(req.Context(), "http.request")
			defer span.End()
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	api.RegisterRoutes(r)

	if rec := do(t, r, http.MethodPost, "/api/v1/reports/r42/priority", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["citycare.report.id"] != "r42" {
		t.Errorf("report id attr = %q", attrs["citycare.report.id"])
	}
	if attrs["citycare.triage.priority"] != "5" {
		t.Errorf("priority attr = %q", attrs["citycare.triage.priority"])
	}
	if attrs["citycare.triage.force"] != "false" {
		t.Errorf("force attr = %q", attrs["citycare.triage.force"])
	}
}
