package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/citycare/internal/cache"
	"github.com/linnemanlabs/citycare/internal/cache/memcache"
	"github.com/linnemanlabs/citycare/internal/cache/pgcache"
	"github.com/linnemanlabs/citycare/internal/cache/rediscache"
	cc "github.com/linnemanlabs/citycare/internal/cfg"
	"github.com/linnemanlabs/citycare/internal/cluster"
	"github.com/linnemanlabs/citycare/internal/llm"
	"github.com/linnemanlabs/citycare/internal/llm/claude"
	"github.com/linnemanlabs/citycare/internal/triage"
	"github.com/linnemanlabs/citycare/internal/triage/memstore"
	"github.com/linnemanlabs/citycare/internal/triage/pgstore"
)

// triageStore is the persistence both store backends provide.
type triageStore interface {
	triage.AuditLog
	triage.AuditReader
	triage.PlanStore
	triage.ReportSource
	cluster.PointSource
}

var (
	_ triageStore = (*memstore.Store)(nil)
	_ triageStore = (*pgstore.Store)(nil)
)

// newProvider builds the model provider selected by appCfg. Gateway attempts
// are reported through hooks.
func newProvider(appCfg *cc.Config, hooks llm.Hooks, L log.Logger) (llm.Provider, error) {
	timeout := time.Duration(appCfg.LLMAttemptTimeoutSeconds) * time.Second

	switch appCfg.LLMProvider {
	case cc.ProviderAnthropic:
		return claude.New(claude.Options{
			APIKey:         appCfg.LLMAPIKey,
			Model:          appCfg.LLMModel,
			BaseURL:        appCfg.LLMBaseURL,
			MaxTokens:      appCfg.LLMMaxTokens,
			AttemptTimeout: timeout,
		}), nil

	case cc.ProviderOpenAI:
		shapes, err := llm.ParseShapes(appCfg.LLMShapes)
		if err != nil {
			return nil, err
		}
		endpoints, err := llm.BuildEndpoints(appCfg.LLMPreset, appCfg.LLMBaseURL, appCfg.FallbackURLs(), shapes)
		if err != nil {
			return nil, err
		}
		return llm.NewGateway(llm.Options{
			APIKey:         appCfg.LLMAPIKey,
			DefaultModel:   appCfg.LLMModel,
			Endpoints:      endpoints,
			AttemptTimeout: timeout,
			MaxTokens:      appCfg.LLMMaxTokens,
			Hooks:          hooks,
		}, L), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", appCfg.LLMProvider)
}

// newCache builds the AI result cache. pool is nil unless a database is
// configured. The returned close func is never nil.
func newCache(ctx context.Context, appCfg *cc.Config, pool *pgxpool.Pool) (cache.Store, func() error, error) {
	ttl := time.Duration(appCfg.CacheTTLSeconds) * time.Second
	noop := func() error { return nil }

	switch appCfg.CacheBackend {
	case cc.CacheMemory:
		return memcache.New(ttl), noop, nil
	case cc.CacheRedis:
		rc, err := rediscache.Connect(ctx, appCfg.RedisURL, ttl)
		if err != nil {
			return nil, noop, fmt.Errorf("redis cache: %w", err)
		}
		return rc, rc.Close, nil
	case cc.CachePostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("postgres cache requires a database url")
		}
		pc, err := pgcache.New(ctx, pool, ttl)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres cache: %w", err)
		}
		return pc, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown cache backend %q", appCfg.CacheBackend)
}
