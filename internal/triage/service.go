package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/citycare/internal/cache"
	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/llm"
	"github.com/linnemanlabs/citycare/internal/report"
)

var (
	// ErrUnavailable wraps surfaced failures of the optional operations.
	// Callers should offer a retry.
	ErrUnavailable = errors.New("triage: suggestion unavailable")

	// ErrInvalidRequest means a required input was empty.
	ErrInvalidRequest = errors.New("triage: invalid request")

	// ErrReportNotFound is returned when a report ID does not resolve.
	ErrReportNotFound = errors.New("triage: report not found")
)

// Cache key prefixes, one namespace per operation.
const (
	priorityKeyPrefix = "priority_"
	assistKeyPrefix   = "assistant_"
)

// DefaultUrgentThreshold is the lowest priority that triggers a notification.
const DefaultUrgentThreshold = 5

// Hooks receive per-operation observations. Nil funcs are skipped.
type Hooks struct {
	OnCacheLookup func(op Operation, hit bool)
	OnComplete    func(op Operation, outcome Outcome, duration float64)
	OnNotify      func(err error)
}

// Options holds the service's collaborators. Provider, Cache, Audit and
// Plans are required; Reports and Notifier are optional.
type Options struct {
	Provider llm.Provider
	Cache    cache.Store
	Audit    AuditLog
	Plans    PlanStore
	Reports  ReportSource
	Notifier Notifier

	// Model overrides the provider's default model when set.
	Model string

	// UrgentThreshold of 0 uses DefaultUrgentThreshold; negative disables notification.
	UrgentThreshold int

	Hooks Hooks
}

// Service orchestrates cache lookup, model call, extraction, cache write
// and audit for each triage operation.
type Service struct {
	provider  llm.Provider
	cache     cache.Store
	audit     AuditLog
	plans     PlanStore
	reports   ReportSource
	notifier  Notifier
	model     string
	threshold int
	hooks     Hooks
	flight    singleflight.Group
	logger    log.Logger
	now       func() time.Time
}

// NewService creates a triage service.
func NewService(opts Options, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	threshold := opts.UrgentThreshold
	if threshold == 0 {
		threshold = DefaultUrgentThreshold
	}
	return &Service{
		provider:  opts.Provider,
		cache:     opts.Cache,
		audit:     opts.Audit,
		plans:     opts.Plans,
		reports:   opts.Reports,
		notifier:  opts.Notifier,
		model:     opts.Model,
		threshold: threshold,
		hooks:     opts.Hooks,
		logger:    logger,
		now:       time.Now,
	}
}

// ScorePriority always returns a usable assessment. Provider and parse
// failures are absorbed into a low-confidence priority 1 whose reason says
// what went wrong.
func (s *Service) ScorePriority(ctx context.Context, req PriorityRequest) extract.PriorityAssessment {
	start := time.Now()
	key := cache.Key(priorityKeyPrefix, req.Title, req.Description, req.Category, req.Context)
	L := s.logger.With("operation", OpPriority, "report_id", req.ReportID)

	if !req.Force {
		var pa extract.PriorityAssessment
		if s.cached(ctx, L, OpPriority, key, &pa) {
			// shared backends may hold entries written by other builds
			pa.Priority = extract.ClampPriority(pa.Priority)
			s.complete(OpPriority, OutcomeCached, start)
			return pa
		}
	}

	type scored struct {
		pa      extract.PriorityAssessment
		outcome Outcome
	}
	v, _, shared := s.flight.Do(flightKey(key, req.ReportID, req.Force), func() (any, error) {
		pa, outcome := s.scorePriority(context.WithoutCancel(ctx), L, key, req)
		return scored{pa, outcome}, nil
	})
	res := v.(scored)
	if shared {
		L.Info(ctx, "joined in-flight priority call")
	}
	s.complete(OpPriority, res.outcome, start)
	return res.pa
}

func (s *Service) scorePriority(ctx context.Context, L log.Logger, key string, req PriorityRequest) (extract.PriorityAssessment, Outcome) {
	reply, err := s.provider.Send(ctx, priorityConversation(req), s.model)
	if err != nil {
		pa := extract.DefaultPriority(failureReason(err))
		L.Error(ctx, err, "priority scoring failed, using default")
		s.record(ctx, L, &AuditRecord{
			ReportID:  req.ReportID,
			Operation: OpPriority,
			Outcome:   OutcomeFallback,
			Priority:  pa.Priority,
			Reason:    pa.Reason,
			RawReply:  errorBody(err),
		})
		return pa, OutcomeFallback
	}

	pa, path := extract.Priority(reply.Text)
	outcome := OutcomeSuccess
	if path == extract.PathDefault {
		outcome = OutcomeFallback
		L.Warn(ctx, "priority reply had no usable payload", "reply", reply.Text)
	} else {
		s.store(ctx, L, key, pa)
	}

	s.record(ctx, L, &AuditRecord{
		ReportID:  req.ReportID,
		Operation: OpPriority,
		Outcome:   outcome,
		Priority:  pa.Priority,
		Reason:    pa.Reason,
		RawReply:  reply.Raw,
		Model:     reply.Model,
	})
	L.Info(ctx, "priority scored",
		"priority", pa.Priority,
		"confidence", pa.Confidence.String(),
		"path", path,
		"attempts", reply.Attempts,
	)

	if outcome == OutcomeSuccess {
		s.notifyIfUrgent(ctx, L, req, pa)
	}
	return pa, outcome
}

// SuggestMetadata proposes a title, category, summary and location for a
// report description. Failures wrap ErrUnavailable.
func (s *Service) SuggestMetadata(ctx context.Context, req SuggestRequest) (*extract.AssistSuggestion, error) {
	start := time.Now()
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidRequest)
	}
	key := cache.Key(assistKeyPrefix, req.Description)
	L := s.logger.With("operation", OpAssist)

	if !req.Force {
		var sug extract.AssistSuggestion
		if s.cached(ctx, L, OpAssist, key, &sug) {
			s.complete(OpAssist, OutcomeCached, start)
			return &sug, nil
		}
	}

	v, err, _ := s.flight.Do(flightKey(key, "", req.Force), func() (any, error) {
		return s.suggest(context.WithoutCancel(ctx), L, key, req)
	})
	if err != nil {
		s.complete(OpAssist, OutcomeFailed, start)
		return nil, err
	}
	s.complete(OpAssist, OutcomeSuccess, start)
	cp := *v.(*extract.AssistSuggestion)
	return &cp, nil
}

func (s *Service) suggest(ctx context.Context, L log.Logger, key string, req SuggestRequest) (*extract.AssistSuggestion, error) {
	reply, err := s.provider.Send(ctx, assistConversation(req.Description), s.model)
	if err != nil {
		L.Error(ctx, err, "assist call failed")
		s.record(ctx, L, &AuditRecord{
			Operation: OpAssist,
			Outcome:   OutcomeFailed,
			Reason:    failureReason(err),
			RawReply:  errorBody(err),
		})
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	sug, err := extract.Assist(reply.Text)
	if err != nil {
		L.Warn(ctx, "assist reply could not be parsed", "reply", reply.Text)
		s.record(ctx, L, &AuditRecord{
			Operation: OpAssist,
			Outcome:   OutcomeFailed,
			Reason:    err.Error(),
			RawReply:  reply.Raw,
			Model:     reply.Model,
		})
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.store(ctx, L, key, sug)
	reason := "suggestion generated"
	if sug.Title != nil {
		reason = *sug.Title
	}
	s.record(ctx, L, &AuditRecord{
		Operation: OpAssist,
		Outcome:   OutcomeSuccess,
		Reason:    reason,
		RawReply:  reply.Raw,
		Model:     reply.Model,
	})
	return sug, nil
}

// GenerateHelpPlan drafts remediation steps for a report. The latest plan
// per report is kept in the PlanStore and served until a forced re-run
// replaces it. Failures wrap ErrUnavailable.
func (s *Service) GenerateHelpPlan(ctx context.Context, req HelpRequest) (*extract.HelpPlan, error) {
	start := time.Now()
	if req.ReportID == "" {
		return nil, fmt.Errorf("%w: report id is required", ErrInvalidRequest)
	}
	L := s.logger.With("operation", OpHelpPlan, "report_id", req.ReportID)

	if !req.Force {
		plan, ok, err := s.plans.GetPlan(ctx, req.ReportID)
		if err != nil {
			L.Warn(ctx, "plan lookup failed, regenerating", "err", err)
		}
		s.lookup(OpHelpPlan, ok && err == nil)
		if ok && err == nil {
			s.complete(OpHelpPlan, OutcomeCached, start)
			return plan, nil
		}
	}

	v, err, _ := s.flight.Do(flightKey("plan_"+req.ReportID, "", req.Force), func() (any, error) {
		return s.helpPlan(context.WithoutCancel(ctx), L, req)
	})
	if err != nil {
		s.complete(OpHelpPlan, OutcomeFailed, start)
		return nil, err
	}
	s.complete(OpHelpPlan, OutcomeSuccess, start)
	plan := v.(*extract.HelpPlan)
	return &extract.HelpPlan{Steps: append([]string(nil), plan.Steps...), Summary: plan.Summary}, nil
}

func (s *Service) helpPlan(ctx context.Context, L log.Logger, req HelpRequest) (*extract.HelpPlan, error) {
	reply, err := s.provider.Send(ctx, helpConversation(req), s.model)
	if err != nil {
		L.Error(ctx, err, "help plan call failed")
		s.record(ctx, L, &AuditRecord{
			ReportID:  req.ReportID,
			Operation: OpHelpPlan,
			Outcome:   OutcomeFailed,
			Reason:    failureReason(err),
			RawReply:  errorBody(err),
		})
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	plan, err := extract.Help(reply.Text)
	if err != nil {
		L.Warn(ctx, "help plan reply could not be parsed", "reply", reply.Text)
		s.record(ctx, L, &AuditRecord{
			ReportID:  req.ReportID,
			Operation: OpHelpPlan,
			Outcome:   OutcomeFailed,
			Reason:    err.Error(),
			RawReply:  reply.Raw,
			Model:     reply.Model,
		})
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := s.plans.PutPlan(ctx, req.ReportID, plan); err != nil {
		L.Error(ctx, err, "failed to store help plan")
	}
	s.record(ctx, L, &AuditRecord{
		ReportID:  req.ReportID,
		Operation: OpHelpPlan,
		Outcome:   OutcomeSuccess,
		Reason:    plan.Summary,
		RawReply:  reply.Raw,
		Model:     reply.Model,
	})
	return plan, nil
}

// ScoreReport loads a report and scores it.
func (s *Service) ScoreReport(ctx context.Context, reportID string, force bool) (extract.PriorityAssessment, error) {
	r, err := s.loadReport(ctx, reportID)
	if err != nil {
		return extract.PriorityAssessment{}, err
	}
	return s.ScorePriority(ctx, PriorityRequest{
		ReportID:    r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Force:       force,
	}), nil
}

// PlanReport loads a report and generates its help plan.
func (s *Service) PlanReport(ctx context.Context, reportID string, force bool) (*extract.HelpPlan, error) {
	r, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return s.GenerateHelpPlan(ctx, HelpRequest{
		ReportID:    r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Force:       force,
	})
}

func (s *Service) loadReport(ctx context.Context, id string) (*report.Report, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	r, ok, err := s.reports.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return r, nil
}

// cached decodes a fresh cache entry into dst. Read errors count as a miss.
func (s *Service) cached(ctx context.Context, L log.Logger, op Operation, key string, dst any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		L.Warn(ctx, "cache read failed", "err", err)
		ok = false
	}
	if ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			L.Warn(ctx, "cached entry unreadable", "err", err)
			ok = false
		}
	}
	s.lookup(op, ok)
	return ok
}

func (s *Service) store(ctx context.Context, L log.Logger, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		L.Error(ctx, err, "failed to encode cache entry")
		return
	}
	if err := s.cache.Put(ctx, key, raw); err != nil {
		L.Error(ctx, err, "cache write failed")
	}
}

func (s *Service) record(ctx context.Context, L log.Logger, rec *AuditRecord) {
	rec.ID = ulid.Make().String()
	rec.CreatedAt = s.now().UTC()
	if rec.Model == "" {
		rec.Model = s.model
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		L.Error(ctx, err, "failed to write audit record", "audit_id", rec.ID)
	}
}

func (s *Service) notifyIfUrgent(ctx context.Context, L log.Logger, req PriorityRequest, pa extract.PriorityAssessment) {
	if s.notifier == nil || s.threshold < 0 || pa.Priority < s.threshold {
		return
	}
	ev := UrgentEvent{
		ReportID:   req.ReportID,
		Title:      req.Title,
		Category:   req.Category,
		Priority:   pa.Priority,
		Reason:     pa.Reason,
		Confidence: pa.Confidence.String(),
		ScoredAt:   s.now().UTC(),
	}
	go func() {
		err := s.notifier.NotifyUrgent(ctx, ev)
		if err != nil {
			L.Error(ctx, err, "urgent notification failed")
		}
		if s.hooks.OnNotify != nil {
			s.hooks.OnNotify(err)
		}
	}()
}

func (s *Service) lookup(op Operation, hit bool) {
	if s.hooks.OnCacheLookup != nil {
		s.hooks.OnCacheLookup(op, hit)
	}
}

func (s *Service) complete(op Operation, outcome Outcome, start time.Time) {
	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(op, outcome, time.Since(start).Seconds())
	}
}

// flightKey scopes coalescing to one report and keeps forced re-runs from
// joining a normal call already in flight.
func flightKey(key, reportID string, force bool) string {
	k := key + "|" + reportID
	if force {
		k += "|force"
	}
	return k
}

// failureReason turns a provider error into the human-readable reason
// stored on fallback results.
func failureReason(err error) string {
	var gerr *llm.Error
	if !errors.As(err, &gerr) {
		return "Unable to analyze - API error: " + err.Error()
	}
	switch gerr.Kind {
	case llm.KindMalformed, llm.KindUnexpectedShape:
		return "Unable to analyze - invalid API response"
	case llm.KindHTTP:
		return fmt.Sprintf("Unable to analyze - API error: http %d: %s", gerr.Code, gerr.Detail)
	}
	return "Unable to analyze - API error: " + gerr.Detail
}

func errorBody(err error) string {
	var gerr *llm.Error
	if errors.As(err, &gerr) {
		return gerr.Body
	}
	return ""
}
