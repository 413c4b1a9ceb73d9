package triage

import (
	"context"

	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/report"
)

// AuditLog appends audit records. It is never read back by the service.
type AuditLog interface {
	Append(ctx context.Context, rec *AuditRecord) error
}

// PlanStore holds the latest help plan per report. PutPlan overwrites.
type PlanStore interface {
	GetPlan(ctx context.Context, reportID string) (*extract.HelpPlan, bool, error)
	PutPlan(ctx context.Context, reportID string, plan *extract.HelpPlan) error
}

// ReportSource reads report rows. The service never writes them.
type ReportSource interface {
	GetReport(ctx context.Context, id string) (*report.Report, bool, error)
}

// Notifier is told about urgent reports. Errors are logged, not returned.
type Notifier interface {
	NotifyUrgent(ctx context.Context, ev UrgentEvent) error
}

// AuditReader lists the audit trail of a report, oldest first. It serves
// operators; the service itself only appends.
type AuditReader interface {
	AuditTrail(ctx context.Context, reportID string) ([]AuditRecord, error)
}
