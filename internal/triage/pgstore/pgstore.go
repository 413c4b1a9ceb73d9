// Package pgstore provides a PostgreSQL implementation of the triage stores.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/citycare/internal/extract"
	"github.com/linnemanlabs/citycare/internal/postgres"
	"github.com/linnemanlabs/citycare/internal/report"
	"github.com/linnemanlabs/citycare/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/citycare/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists audit records and help plans, and reads reports, in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The pool is
// owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := postgres.Migrate(ctx, pool, schema); err != nil {
		return nil, fmt.Errorf("pgstore: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

const reportColumns = `id, title, description, category, lat, lng, created_at`

// GetReport retrieves a report by ID. Reports without coordinates load with
// Located false and zero lat/lng.
func (s *Store) GetReport(ctx context.Context, id string) (*report.Report, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetReport", "SELECT")
	defer span.End()

	var (
		r        report.Report
		lat, lng *float64
	)
	err := s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id).
		Scan(&r.ID, &r.Title, &r.Description, &r.Category, &lat, &lng, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("select report: %w", err))
	}
	if lat != nil && lng != nil {
		r.Lat, r.Lng, r.Located = *lat, *lng, true
	}
	return &r, true, nil
}

// RecentPoints returns located reports created at or after since, oldest first.
func (s *Store) RecentPoints(ctx context.Context, since time.Time, category string) ([]report.Point, error) {
	ctx, span := startSpan(ctx, "pgstore.RecentPoints", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.String("report.category", category))

	rows, err := s.pool.Query(ctx,
		`SELECT id, lat, lng, category, created_at FROM reports
		 WHERE created_at >= $1
		   AND lat IS NOT NULL AND lng IS NOT NULL
		   AND ($2 = '' OR lower(category) = lower($2))
		 ORDER BY created_at`,
		since, category,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query recent reports: %w", err))
	}
	defer rows.Close()

	var out []report.Point
	for rows.Next() {
		var p report.Point
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.Category, &p.CreatedAt); err != nil {
			return nil, fail(span, fmt.Errorf("scan report point: %w", err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate reports: %w", err))
	}
	span.SetAttributes(attribute.Int("report.count", len(out)))
	return out, nil
}

// Append inserts an audit record. Records are never updated.
func (s *Store) Append(ctx context.Context, rec *triage.AuditRecord) error {
	ctx, span := startSpan(ctx, "pgstore.Append", "INSERT")
	defer span.End()

	var priority *int
	if rec.Priority > 0 {
		priority = &rec.Priority
	}
	var reportID, raw *string
	if rec.ReportID != "" {
		reportID = &rec.ReportID
	}
	if rec.RawReply != "" {
		raw = &rec.RawReply
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_logs (id, report_id, operation, outcome, priority, reason, raw_response, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, reportID, string(rec.Operation), string(rec.Outcome), priority, rec.Reason, raw, rec.Model, rec.CreatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert audit record: %w", err))
	}
	return nil
}

// AuditTrail returns the audit records for a report, oldest first.
func (s *Store) AuditTrail(ctx context.Context, reportID string) ([]triage.AuditRecord, error) {
	ctx, span := startSpan(ctx, "pgstore.AuditTrail", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, report_id, operation, outcome, priority, reason, raw_response, model, created_at
		 FROM ai_logs WHERE report_id = $1 ORDER BY created_at, id`,
		reportID,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query audit trail: %w", err))
	}
	defer rows.Close()

	var out []triage.AuditRecord
	for rows.Next() {
		var (
			rec         triage.AuditRecord
			op, outcome string
			rid, raw    *string
			priority    *int
		)
		if err := rows.Scan(&rec.ID, &rid, &op, &outcome, &priority, &rec.Reason, &raw, &rec.Model, &rec.CreatedAt); err != nil {
			return nil, fail(span, fmt.Errorf("scan audit record: %w", err))
		}
		rec.Operation = triage.Operation(op)
		rec.Outcome = triage.Outcome(outcome)
		if rid != nil {
			rec.ReportID = *rid
		}
		if raw != nil {
			rec.RawReply = *raw
		}
		if priority != nil {
			rec.Priority = *priority
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate audit trail: %w", err))
	}
	return out, nil
}

// GetPlan returns the latest help plan for a report.
func (s *Store) GetPlan(ctx context.Context, reportID string) (*extract.HelpPlan, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetPlan", "SELECT")
	defer span.End()

	var (
		plan      extract.HelpPlan
		stepsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT steps, summary FROM help_plans WHERE report_id = $1`, reportID,
	).Scan(&stepsJSON, &plan.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("select help plan: %w", err))
	}
	if err := json.Unmarshal(stepsJSON, &plan.Steps); err != nil {
		return nil, false, fail(span, fmt.Errorf("unmarshal steps: %w", err))
	}
	return &plan, true, nil
}

// PutPlan replaces the help plan for a report.
func (s *Store) PutPlan(ctx context.Context, reportID string, plan *extract.HelpPlan) error {
	ctx, span := startSpan(ctx, "pgstore.PutPlan", "UPSERT")
	defer span.End()

	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fail(span, fmt.Errorf("marshal steps: %w", err))
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO help_plans (report_id, steps, summary, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (report_id) DO UPDATE SET
			steps      = EXCLUDED.steps,
			summary    = EXCLUDED.summary,
			updated_at = EXCLUDED.updated_at`,
		reportID, stepsJSON, plan.Summary,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert help plan: %w", err))
	}
	return nil
}

// Ping reports whether the database is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
