// Package config assembles operator-tunable values for every component
// (spec.md §6 "Configuration (deployment)"), adapted from core/config.go's
// three-layer design: coded defaults, then environment variables, then
// functional options, in that order of increasing priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the listening HTTP server (mirrors core/config.go's
// HTTPConfig).
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ITINERARY_HTTP_ADDR"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"ITINERARY_HTTP_READ_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"ITINERARY_HTTP_READ_HEADER_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"ITINERARY_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"ITINERARY_HTTP_IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"ITINERARY_HTTP_MAX_HEADER_BYTES"`
	CORSEnabled       bool          `yaml:"cors_enabled" env:"ITINERARY_CORS_ENABLED"`
	CORSOrigins       []string      `yaml:"cors_origins" env:"ITINERARY_CORS_ORIGINS"`
}

// WorkerConfig controls the Coordinator's worker pool (mirrors
// AsyncTaskConfig/TaskWorkerConfig's concurrency and deadline knobs).
type WorkerConfig struct {
	Concurrency        int           `yaml:"concurrency" env:"ITINERARY_WORKER_CONCURRENCY"`
	QueueSize          int           `yaml:"queue_size" env:"ITINERARY_WORKER_QUEUE_SIZE"`
	JobDeadline        time.Duration `yaml:"job_deadline" env:"ITINERARY_WORKER_JOB_DEADLINE"`
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval" env:"ITINERARY_WORKER_CANCEL_POLL_INTERVAL"`
	RetryDelay         time.Duration `yaml:"retry_delay" env:"ITINERARY_WORKER_RETRY_DELAY"`
}

// SpendConfig controls the preflight spend-cap check (spec.md §4.1 step 5).
type SpendConfig struct {
	Window          time.Duration `yaml:"window" env:"ITINERARY_SPEND_WINDOW"`
	Cap             float64       `yaml:"cap" env:"ITINERARY_SPEND_CAP"`
	PerCallEstimate float64       `yaml:"per_call_estimate" env:"ITINERARY_SPEND_PER_CALL_ESTIMATE"`
}

// ExportConfig controls the Exporter's provider limits (spec.md §4.2, §6).
type ExportConfig struct {
	MapyPointLimit      int `yaml:"mapy_point_limit" env:"ITINERARY_EXPORT_MAPY_LIMIT"`
	GooglePointLimit    int `yaml:"google_point_limit" env:"ITINERARY_EXPORT_GOOGLE_LIMIT"`
	CoordinatePrecision int `yaml:"coordinate_precision" env:"ITINERARY_EXPORT_COORDINATE_PRECISION"`
}

// StoreConfig selects and configures the Generation Store backend (mirrors
// core/config.go's DiscoveryConfig provider switch).
type StoreConfig struct {
	Provider  string        `yaml:"provider" env:"ITINERARY_STORE_PROVIDER"` // "memory" or "redis"
	RedisURL  string        `yaml:"redis_url" env:"ITINERARY_REDIS_URL,REDIS_URL"`
	KeyPrefix string        `yaml:"key_prefix" env:"ITINERARY_STORE_KEY_PREFIX"`
	RecordTTL time.Duration `yaml:"record_ttl" env:"ITINERARY_STORE_RECORD_TTL"`
	LedgerTTL time.Duration `yaml:"ledger_ttl" env:"ITINERARY_STORE_LEDGER_TTL"`
}

// TelemetryConfig controls the OpenTelemetry exporter (mirrors
// core/config.go's TelemetryConfig / telemetry.Profile switch).
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ITINERARY_OTEL_ENABLED"`
	ServiceName string `yaml:"service_name" env:"ITINERARY_OTEL_SERVICE_NAME"`
	Endpoint    string `yaml:"endpoint" env:"ITINERARY_OTEL_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// AIConfig configures the Anthropic-backed AI Invoker (mirrors
// core/config.go's AIConfig).
type AIConfig struct {
	APIKey    string        `yaml:"-" env:"ITINERARY_AI_API_KEY,ANTHROPIC_API_KEY"`
	Model     string        `yaml:"model" env:"ITINERARY_AI_MODEL"`
	MaxTokens int           `yaml:"max_tokens" env:"ITINERARY_AI_MAX_TOKENS"`
	Timeout   time.Duration `yaml:"timeout" env:"ITINERARY_AI_TIMEOUT"`
	UseMock   bool          `yaml:"use_mock" env:"ITINERARY_AI_USE_MOCK"`
}

// Config is the complete set of operator-tunable values for one deployment.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Worker    WorkerConfig    `yaml:"worker"`
	Spend     SpendConfig     `yaml:"spend"`
	Export    ExportConfig    `yaml:"export"`
	Store     StoreConfig     `yaml:"store"`
	AI        AIConfig        `yaml:"ai"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// Default returns every coded default named in spec.md §6 and §4.2.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
			CORSEnabled:       false,
		},
		Worker: WorkerConfig{
			Concurrency:        5,
			QueueSize:          256,
			JobDeadline:        5 * time.Minute,
			CancelPollInterval: 500 * time.Millisecond,
			RetryDelay:         1 * time.Second,
		},
		Spend: SpendConfig{
			Window:          30 * 24 * time.Hour,
			Cap:             0,
			PerCallEstimate: 0.05,
		},
		Export: ExportConfig{
			MapyPointLimit:      15,
			GooglePointLimit:    25,
			CoordinatePrecision: 6,
		},
		Store: StoreConfig{
			Provider:  "memory",
			KeyPrefix: "itinerary",
			RecordTTL: 30 * 24 * time.Hour,
			LedgerTTL: 90 * 24 * time.Hour,
		},
		AI: AIConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "itinerary-coordinator",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Option mutates a Config after env loading, the highest-priority layer
// (mirrors core/config.go's functional Option pattern).
type Option func(*Config)

func WithServerAddr(addr string) Option { return func(c *Config) { c.Server.Addr = addr } }

func WithWorkerConcurrency(n int) Option { return func(c *Config) { c.Worker.Concurrency = n } }

func WithSpendCap(cap float64) Option { return func(c *Config) { c.Spend.Cap = cap } }

func WithStoreProvider(provider, redisURL string) Option {
	return func(c *Config) { c.Store.Provider = provider; c.Store.RedisURL = redisURL }
}

func WithAIConfig(apiKey, model string) Option {
	return func(c *Config) { c.AI.APIKey = apiKey; c.AI.Model = model }
}

func WithMockAI(enabled bool) Option { return func(c *Config) { c.AI.UseMock = enabled } }

// Load builds a Config: defaults, then environment variables, then opts,
// then validation — the same three-layer order as core/config.go's
// NewConfig.
func Load(opts ...Option) (*Config, error) {
	cfg := Default()
	cfg.loadFromEnv()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile layers a YAML override file on top of cfg: fields present in the
// file win; fields absent from the file keep cfg's current value (yaml.v3
// only mutates fields its document actually sets).
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations that would violate a spec invariant once
// running (e.g. a zero worker pool that can never drain the job queue).
func (c *Config) Validate() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.JobDeadline <= 0 {
		return fmt.Errorf("worker.job_deadline must be > 0")
	}
	if c.Export.MapyPointLimit <= 0 || c.Export.GooglePointLimit <= 0 {
		return fmt.Errorf("export point limits must be > 0")
	}
	switch c.Store.Provider {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required when store.provider=redis")
		}
	default:
		return fmt.Errorf("store.provider must be \"memory\" or \"redis\", got %q", c.Store.Provider)
	}
	if !c.AI.UseMock && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required unless ai.use_mock is set")
	}
	return nil
}

// loadFromEnv reads every field tagged with `env:"..."`, a comma-separated
// list of variable names tried in order (mirrors core/config.go's
// "framework-specific, then standard" variable precedence, e.g.
// ITINERARY_REDIS_URL falling back to REDIS_URL).
func (c *Config) loadFromEnv() {
	stringVar(&c.Server.Addr, "ITINERARY_HTTP_ADDR")
	durationVar(&c.Server.ReadTimeout, "ITINERARY_HTTP_READ_TIMEOUT")
	durationVar(&c.Server.ReadHeaderTimeout, "ITINERARY_HTTP_READ_HEADER_TIMEOUT")
	durationVar(&c.Server.WriteTimeout, "ITINERARY_HTTP_WRITE_TIMEOUT")
	durationVar(&c.Server.IdleTimeout, "ITINERARY_HTTP_IDLE_TIMEOUT")
	intVar(&c.Server.MaxHeaderBytes, "ITINERARY_HTTP_MAX_HEADER_BYTES")
	boolVar(&c.Server.CORSEnabled, "ITINERARY_CORS_ENABLED")
	stringSliceVar(&c.Server.CORSOrigins, "ITINERARY_CORS_ORIGINS")

	intVar(&c.Worker.Concurrency, "ITINERARY_WORKER_CONCURRENCY")
	intVar(&c.Worker.QueueSize, "ITINERARY_WORKER_QUEUE_SIZE")
	durationVar(&c.Worker.JobDeadline, "ITINERARY_WORKER_JOB_DEADLINE")
	durationVar(&c.Worker.CancelPollInterval, "ITINERARY_WORKER_CANCEL_POLL_INTERVAL")
	durationVar(&c.Worker.RetryDelay, "ITINERARY_WORKER_RETRY_DELAY")

	durationVar(&c.Spend.Window, "ITINERARY_SPEND_WINDOW")
	floatVar(&c.Spend.Cap, "ITINERARY_SPEND_CAP")
	floatVar(&c.Spend.PerCallEstimate, "ITINERARY_SPEND_PER_CALL_ESTIMATE")

	intVar(&c.Export.MapyPointLimit, "ITINERARY_EXPORT_MAPY_LIMIT")
	intVar(&c.Export.GooglePointLimit, "ITINERARY_EXPORT_GOOGLE_LIMIT")
	intVar(&c.Export.CoordinatePrecision, "ITINERARY_EXPORT_COORDINATE_PRECISION")

	stringVar(&c.Store.Provider, "ITINERARY_STORE_PROVIDER")
	stringVar(&c.Store.RedisURL, "ITINERARY_REDIS_URL", "REDIS_URL")
	stringVar(&c.Store.KeyPrefix, "ITINERARY_STORE_KEY_PREFIX")
	durationVar(&c.Store.RecordTTL, "ITINERARY_STORE_RECORD_TTL")
	durationVar(&c.Store.LedgerTTL, "ITINERARY_STORE_LEDGER_TTL")

	stringVar(&c.AI.APIKey, "ITINERARY_AI_API_KEY", "ANTHROPIC_API_KEY")
	stringVar(&c.AI.Model, "ITINERARY_AI_MODEL")
	intVar(&c.AI.MaxTokens, "ITINERARY_AI_MAX_TOKENS")
	durationVar(&c.AI.Timeout, "ITINERARY_AI_TIMEOUT")
	boolVar(&c.AI.UseMock, "ITINERARY_AI_USE_MOCK")

	boolVar(&c.Telemetry.Enabled, "ITINERARY_OTEL_ENABLED")
	stringVar(&c.Telemetry.ServiceName, "ITINERARY_OTEL_SERVICE_NAME")
	stringVar(&c.Telemetry.Endpoint, "ITINERARY_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	stringVar(&c.LogLevel, "LOG_LEVEL")
	stringVar(&c.LogFormat, "LOG_FORMAT")
}

func firstEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

func stringVar(dst *string, names ...string) {
	if v, ok := firstEnv(names...); ok {
		*dst = v
	}
}

func stringSliceVar(dst *[]string, names ...string) {
	if v, ok := firstEnv(names...); ok {
		*dst = strings.Split(v, ",")
	}
}

func intVar(dst *int, names ...string) {
	if v, ok := firstEnv(names...); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, names ...string) {
	if v, ok := firstEnv(names...); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolVar(dst *bool, names ...string) {
	if v, ok := firstEnv(names...); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func durationVar(dst *time.Duration, names ...string) {
	if v, ok := firstEnv(names...); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
