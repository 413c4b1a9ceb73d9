package triage

import "time"

// Operation names a triage use case.
type Operation string

const (
	OpPriority Operation = "priority"
	OpAssist   Operation = "assist"
	OpHelpPlan Operation = "help_plan"
)

// Outcome is how an operation finished.
type Outcome string

const (
	// OutcomeCached means the result came from the cache without a model call
	OutcomeCached Outcome = "cached"

	// OutcomeSuccess means a model answer was parsed into a result
	OutcomeSuccess Outcome = "success"

	// OutcomeFallback means a default result was returned in place of an answer
	OutcomeFallback Outcome = "fallback"

	// OutcomeFailed means the failure was surfaced to the caller
	OutcomeFailed Outcome = "failed"
)

// AuditRecord is one model call and its result. Records are append-only.
type AuditRecord struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id,omitempty"`
	Operation Operation `json:"operation"`
	Outcome   Outcome   `json:"outcome"`
	Priority  int       `json:"priority,omitempty"`
	Reason    string    `json:"reason"`
	RawReply  string    `json:"raw_reply,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PriorityRequest is the input to ScorePriority.
type PriorityRequest struct {
	ReportID    string `json:"report_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Context     string `json:"context,omitempty"`
	// Force skips the cache read; the result is still cached and audited.
	Force bool `json:"force,omitempty"`
}

// SuggestRequest is the input to SuggestMetadata.
type SuggestRequest struct {
	Description string `json:"description"`
	Force       bool   `json:"force,omitempty"`
}

// HelpRequest is the input to GenerateHelpPlan.
type HelpRequest struct {
	ReportID    string `json:"report_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// UrgentEvent is sent to the Notifier when a fresh score meets the threshold.
type UrgentEvent struct {
	ReportID   string
	Title      string
	Category   string
	Priority   int
	Reason     string
	Confidence string
	ScoredAt   time.Time
}
