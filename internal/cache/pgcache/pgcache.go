// Package pgcache provides a PostgreSQL implementation of cache.Store.
package pgcache

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/citycare/internal/cache"
	"github.com/linnemanlabs/citycare/internal/postgres"
)

var tracer = otel.Tracer("github.com/linnemanlabs/citycare/internal/cache/pgcache")

//go:embed schema.sql
var schema string

// Store keeps cache entries in the ai_cache table.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// New applies the schema on pool and returns a ready Store. A non-positive
// ttl uses cache.DefaultTTL.
func New(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration) (*Store, error) {
	if err := postgres.Migrate(ctx, pool, schema); err != nil {
		return nil, fmt.Errorf("pgcache: %w", err)
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Store{pool: pool, ttl: ttl, now: time.Now}, nil
}

// Get returns the value for key unless it is absent or older than the TTL.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "pgcache.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	e := cache.Entry{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT value, stored_at FROM ai_cache WHERE cache_key = $1`, key,
	).Scan(&e.Value, &e.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("select cache entry: %w", err)
	}

	if e.Expired(s.now(), s.ttl) {
		span.SetAttributes(attribute.Bool("cache.expired", true))
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Put upserts value under key and refreshes stored_at.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "pgcache.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_cache (cache_key, value, stored_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at`,
		key, value, s.now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}
