// Package memstore provides an in-memory implementation of the triage
// stores: audit log, help plans, and a report table for cluster reads.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/report"
	"github.com/linnemanlabs/citycare/internal/triage"
)

// Store holds triage state in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	reports map[string]report.Report    // report ID -> report
	plans   map[string]extract.HelpPlan // report ID -> latest plan
	audit   []triage.AuditRecord        // append-only
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		reports: make(map[string]report.Report),
		plans:   make(map[string]extract.HelpPlan),
	}
}

// PutReport stores a copy of r. Reports are owned by the host application;
// this exists to seed dev instances and tests.
func (s *Store) PutReport(_ context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = *r
	return nil
}

// GetReport retrieves a report by ID. Returns a copy.
func (s *Store) GetReport(_ context.Context, id string) (*report.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

// RecentPoints returns located reports created at or after since, oldest first.
func (s *Store) RecentPoints(_ context.Context, since time.Time, category string) ([]report.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []report.Point
	for _, r := range s.reports {
		if !r.Located || r.CreatedAt.Before(since) {
			continue
		}
		if category != "" && !strings.EqualFold(r.Category, category) {
			continue
		}
		out = append(out, r.Point())
	}
	slices.SortFunc(out, func(a, b report.Point) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// Append adds a copy of rec to the audit log.
func (s *Store) Append(_ context.Context, rec *triage.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *rec)
	return nil
}

// AuditTrail returns the audit records for a report, oldest first.
func (s *Store) AuditTrail(_ context.Context, reportID string) ([]triage.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []triage.AuditRecord
	for _, rec := range s.audit {
		if rec.ReportID == reportID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetPlan returns a copy of the latest plan for a report.
func (s *Store) GetPlan(_ context.Context, reportID string) (*extract.HelpPlan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[reportID]
	if !ok {
		return nil, false, nil
	}
	p.Steps = slices.Clone(p.Steps)
	return &p, true, nil
}

// PutPlan replaces the plan for a report.
func (s *Store) PutPlan(_ context.Context, reportID string, plan *extract.HelpPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[reportID] = extract.HelpPlan{Steps: slices.Clone(plan.Steps), Summary: plan.Summary}
	return nil
}
