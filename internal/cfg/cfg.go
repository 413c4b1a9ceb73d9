package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/linnemanlabs/citycare/internal/llm"
)

// Provider and cache backend names accepted by Config.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APITokens             string

	LLMProvider              string
	LLMPreset                string
	LLMAPIKey                string
	LLMModel                 string
	LLMBaseURL               string
	LLMFallbackURLs          string
	LLMShapes                string
	LLMAttemptTimeoutSeconds int
	LLMMaxTokens             int

	CacheBackend    string
	CacheTTLSeconds int
	RedisURL        string
	DatabaseURL     string
	DBSlowQueryMS   int

	ClusterProximityMeters float64
	ClusterWindowHours     int

	SlackWebhookURL string
	UrgentThreshold int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APITokens, "api-tokens", "", "comma-separated bearer tokens accepted by the triage API (empty = unauthenticated)")

	fs.StringVar(&c.LLMProvider, "llm-provider", ProviderOpenAI, "model provider: openai (any OpenAI-compatible endpoint) or anthropic")
	fs.StringVar(&c.LLMPreset, "llm-preset", "groq", "OpenAI-compatible provider preset (groq, openrouter, deepinfra, google)")
	fs.StringVar(&c.LLMAPIKey, "llm-api-key", "", "API key for the model provider (empty = every call falls back)")
	fs.StringVar(&c.LLMModel, "llm-model", "llama-3.1-8b-instant", "default model name")
	fs.StringVar(&c.LLMBaseURL, "llm-base-url", "", "chat endpoint URL, overrides the preset")
	fs.StringVar(&c.LLMFallbackURLs, "llm-fallback-urls", "", "comma-separated chat endpoint URLs tried after the primary")
	fs.StringVar(&c.LLMShapes, "llm-shapes", "messages,flattened,prompt", "payload shapes tried per endpoint, in order")
	fs.IntVar(&c.LLMAttemptTimeoutSeconds, "llm-attempt-timeout-seconds", 25, "timeout for each provider attempt (1..120)")
	fs.IntVar(&c.LLMMaxTokens, "llm-max-tokens", llm.DefaultMaxTokens, "max tokens requested per reply")

	fs.StringVar(&c.CacheBackend, "cache-backend", CacheMemory, "AI result cache: memory, redis or postgres")
	fs.IntVar(&c.CacheTTLSeconds, "cache-ttl-seconds", 86400, "AI result cache lifetime in seconds")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis connection URL for the redis cache backend")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBSlowQueryMS, "db-slow-query-ms", 0, "only log successful queries at least this slow (0 = log all)")

	fs.Float64Var(&c.ClusterProximityMeters, "cluster-proximity-meters", 500, "maximum distance between clustered reports")
	fs.IntVar(&c.ClusterWindowHours, "cluster-window-hours", 48, "time window for clustered reports")

	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for urgent report notifications")
	fs.IntVar(&c.UrgentThreshold, "urgent-threshold", 5, "lowest priority that notifies field staff (1..5, -1 disables)")
}

// Tokens returns the configured API tokens, trimmed, empties removed.
func (c *Config) Tokens() []string { return splitList(c.APITokens) }

// FallbackURLs returns the configured fallback endpoint URLs.
func (c *Config) FallbackURLs() []string { return splitList(c.LLMFallbackURLs) }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
// A missing LLM API key is valid: triage degrades to fallback results.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.LLMProvider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.LLMBaseURL) == "" {
			if _, ok := llm.Presets[strings.ToLower(strings.TrimSpace(c.LLMPreset))]; !ok {
				errs = append(errs, fmt.Errorf("unknown LLM_PRESET %q and no LLM_BASE_URL set", c.LLMPreset))
			}
		}
		if _, err := llm.ParseShapes(c.LLMShapes); err != nil {
			errs = append(errs, fmt.Errorf("invalid LLM_SHAPES: %w", err))
		}
	case ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be %s or %s)", c.LLMProvider, ProviderOpenAI, ProviderAnthropic))
	}

	if strings.TrimSpace(c.LLMModel) == "" {
		errs = append(errs, errors.New("LLM_MODEL is required"))
	}
	if c.LLMAttemptTimeoutSeconds <= 0 || c.LLMAttemptTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid LLM_ATTEMPT_TIMEOUT_SECONDS %d (must be 1..120)", c.LLMAttemptTimeoutSeconds))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_MAX_TOKENS %d (must be positive)", c.LLMMaxTokens))
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis cache backend"))
		}
	case CachePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CACHE_BACKEND %q (must be memory, redis or postgres)", c.CacheBackend))
	}
	if c.CacheTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid CACHE_TTL_SECONDS %d (must be positive)", c.CacheTTLSeconds))
	}

	if c.DBSlowQueryMS < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.DBSlowQueryMS))
	}

	if c.ClusterProximityMeters <= 0 {
		errs = append(errs, fmt.Errorf("invalid CLUSTER_PROXIMITY_METERS %v (must be positive)", c.ClusterProximityMeters))
	}
	if c.ClusterWindowHours <= 0 {
		errs = append(errs, fmt.Errorf("invalid CLUSTER_WINDOW_HOURS %d (must be positive)", c.ClusterWindowHours))
	}

	if c.UrgentThreshold != -1 && (c.UrgentThreshold < 1 || c.UrgentThreshold > 5) {
		errs = append(errs, fmt.Errorf("invalid URGENT_THRESHOLD %d (must be 1..5, or -1 to disable)", c.UrgentThreshold))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
