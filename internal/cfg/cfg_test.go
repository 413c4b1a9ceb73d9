package cfg

import (
	"flag"
	"math"
	"reflect"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:             60,
		ShutdownBudgetSeconds:    90,
		APIPort:                  8080,
		LLMProvider:              ProviderOpenAI,
		LLMPreset:                "groq",
		LLMModel:                 "llama-3.1-8b-instant",
		LLMShapes:                "messages,flattened,prompt",
		LLMAttemptTimeoutSeconds: 25,
		LLMMaxTokens:             1024,
		CacheBackend:             CacheMemory,
		CacheTTLSeconds:          86400,
		ClusterProximityMeters:   500,
		ClusterWindowHours:       48,
		UrgentThreshold:          5,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.LLMProvider != ProviderOpenAI {
		t.Errorf("LLMProvider = %q, want %q", c.LLMProvider, ProviderOpenAI)
	}
	if c.CacheBackend != CacheMemory {
		t.Errorf("CacheBackend = %q, want %q", c.CacheBackend, CacheMemory)
	}
	if c.CacheTTLSeconds != 86400 {
		t.Errorf("CacheTTLSeconds = %d, want 86400", c.CacheTTLSeconds)
	}
	if c.ClusterProximityMeters != 500 {
		t.Errorf("ClusterProximityMeters = %v, want 500", c.ClusterProximityMeters)
	}
	if c.ClusterWindowHours != 48 {
		t.Errorf("ClusterWindowHours = %d, want 48", c.ClusterWindowHours)
	}
	if c.UrgentThreshold != 5 {
		t.Errorf("UrgentThreshold = %d, want 5", c.UrgentThreshold)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-llm-provider", "anthropic",
		"-llm-api-key", "sk-override",
		"-llm-model", "claude-sonnet-4-20250514",
		"-cache-backend", "redis",
		"-redis-url", "redis://localhost:6379/0",
		"-cluster-proximity-meters", "250.5",
		"-urgent-threshold", "-1",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.LLMProvider != ProviderAnthropic {
		t.Errorf("LLMProvider = %q, want %q", c.LLMProvider, ProviderAnthropic)
	}
	if c.LLMAPIKey != "sk-override" {
		t.Errorf("LLMAPIKey = %q, want %q", c.LLMAPIKey, "sk-override")
	}
	if c.CacheBackend != CacheRedis || c.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("cache = %q %q", c.CacheBackend, c.RedisURL)
	}
	if c.ClusterProximityMeters != 250.5 {
		t.Errorf("ClusterProximityMeters = %v, want 250.5", c.ClusterProximityMeters)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("overrides do not validate: %v", err)
	}
}

func TestSplitLists(t *testing.T) {
	t.Parallel()

	c := Config{
		APITokens:       " tok-a, ,tok-b ,",
		LLMFallbackURLs: "https://a.example/v1/chat/completions,https://b.example/v1/chat/completions",
	}
	if got, want := c.Tokens(), []string{"tok-a", "tok-b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
	if got := c.FallbackURLs(); len(got) != 2 {
		t.Errorf("FallbackURLs() = %v, want 2 entries", got)
	}
	if got := (&Config{}).Tokens(); got != nil {
		t.Errorf("empty Tokens() = %v, want nil", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mut func(*Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:    "missing api key is valid",
			cfg:     with(func(c *Config) { c.LLMAPIKey = "" }),
			wantErr: false,
		},
		{
			name:    "anthropic without preset",
			cfg:     with(func(c *Config) { c.LLMProvider = ProviderAnthropic; c.LLMPreset = "" }),
			wantErr: false,
		},
		{
			name:    "base url replaces unknown preset",
			cfg:     with(func(c *Config) { c.LLMPreset = "nope"; c.LLMBaseURL = "https://llm.internal/v1/chat/completions" }),
			wantErr: false,
		},
		{
			name:    "urgent notifications disabled",
			cfg:     with(func(c *Config) { c.UrgentThreshold = -1 }),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       with(func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:    "drain at upper bound",
			cfg:     with(func(c *Config) { c.DrainSeconds = 300; c.ShutdownBudgetSeconds = 300 }),
			wantErr: true, // budget must be greater than drain
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       with(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Provider
		{
			name:      "unknown provider",
			cfg:       with(func(c *Config) { c.LLMProvider = "bard" }),
			wantErr:   true,
			errSubstr: []string{"LLM_PROVIDER"},
		},
		{
			name:      "unknown preset",
			cfg:       with(func(c *Config) { c.LLMPreset = "nope" }),
			wantErr:   true,
			errSubstr: []string{"LLM_PRESET"},
		},
		{
			name:      "bad shape",
			cfg:       with(func(c *Config) { c.LLMShapes = "messages,xml" }),
			wantErr:   true,
			errSubstr: []string{"LLM_SHAPES"},
		},
		{
			name:      "blank model",
			cfg:       with(func(c *Config) { c.LLMModel = "  " }),
			wantErr:   true,
			errSubstr: []string{"LLM_MODEL"},
		},
		{
			name:      "attempt timeout too long",
			cfg:       with(func(c *Config) { c.LLMAttemptTimeoutSeconds = 121 }),
			wantErr:   true,
			errSubstr: []string{"LLM_ATTEMPT_TIMEOUT_SECONDS"},
		},
		// Cache
		{
			name:      "redis without url",
			cfg:       with(func(c *Config) { c.CacheBackend = CacheRedis }),
			wantErr:   true,
			errSubstr: []string{"REDIS_URL"},
		},
		{
			name:      "postgres without url",
			cfg:       with(func(c *Config) { c.CacheBackend = CachePostgres }),
			wantErr:   true,
			errSubstr: []string{"DATABASE_URL"},
		},
		{
			name:      "unknown cache backend",
			cfg:       with(func(c *Config) { c.CacheBackend = "memcached" }),
			wantErr:   true,
			errSubstr: []string{"CACHE_BACKEND"},
		},
		{
			name:      "zero ttl",
			cfg:       with(func(c *Config) { c.CacheTTLSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"CACHE_TTL_SECONDS"},
		},
		// Clustering and notification
		{
			name:      "zero proximity",
			cfg:       with(func(c *Config) { c.ClusterProximityMeters = 0 }),
			wantErr:   true,
			errSubstr: []string{"CLUSTER_PROXIMITY_METERS"},
		},
		{
			name:      "zero window",
			cfg:       with(func(c *Config) { c.ClusterWindowHours = 0 }),
			wantErr:   true,
			errSubstr: []string{"CLUSTER_WINDOW_HOURS"},
		},
		{
			name:      "threshold out of range",
			cfg:       with(func(c *Config) { c.UrgentThreshold = 6 }),
			wantErr:   true,
			errSubstr: []string{"URGENT_THRESHOLD"},
		},
		// Error accumulation: all fields invalid
		{
			name:    "all fields invalid",
			cfg:     Config{},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "LLM_PROVIDER", "LLM_MODEL",
				"CACHE_BACKEND", "CACHE_TTL_SECONDS", "CLUSTER_PROXIMITY_METERS", "URGENT_THRESHOLD",
			},
		},
		{
			name:      "extreme negative values",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = math.MinInt32, math.MinInt32, math.MinInt32 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, ttl int
		backend, redisURL        string
	}{
		{60, 90, 8080, 86400, "memory", ""},
		{1, 2, 1, 1, "redis", "redis://r"},
		{299, 300, 65535, 60, "postgres", ""},
		{0, 0, 0, 0, "", ""},
		{-1, -1, -1, -1, "redis", ""},
		{300, 300, 65535, 1, "memory", ""},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "x", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "memory", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.ttl, s.backend, s.redisURL)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, ttl int, backend, redisURL string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.CacheTTLSeconds = ttl
		c.CacheBackend = backend
		c.RedisURL = redisURL
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		ttlOK := ttl > 0
		backendOK := backend == CacheMemory || (backend == CacheRedis && redisURL != "")

		allValid := drainOK && budgetOK && portOK && crossOK && ttlOK && backendOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
