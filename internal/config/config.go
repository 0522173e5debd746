package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/cybertron15/review-booster/pkg/config"
	"github.com/cybertron15/review-booster/pkg/database"
	"github.com/cybertron15/review-booster/pkg/httpclient"
)

// Backend names accepted by BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Dashboard sources accepted by DASHBOARD_SOURCE.
const (
	DashboardBackend = "backend"
	DashboardSample  = "sample"
)

// Config holds all configuration for the review booster.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort  int    `env:"HTTP_PORT" envDefault:"8080"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	// Storage backend
	Backend string `env:"BACKEND" envDefault:"supabase"`

	// Supabase project (REST data and auth)
	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	// Backend transport
	BackendTimeoutSecs  int     `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"10"`
	BackendMaxRetries   int     `env:"BACKEND_MAX_RETRIES" envDefault:"0"`
	BreakerMaxRequests  uint32  `env:"BACKEND_BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerIntervalSecs int     `env:"BACKEND_BREAKER_INTERVAL_SECONDS" envDefault:"60"`
	BreakerTimeoutSecs  int     `env:"BACKEND_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	BreakerFailureRatio float64 `env:"BACKEND_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32  `env:"BACKEND_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// PostgreSQL (BACKEND=postgres)
	PostgresURL  string `env:"POSTGRES_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPass string `env:"POSTGRES_PASSWORD"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"postgres"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"require"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	RunMigrations         bool  `env:"RUN_MIGRATIONS" envDefault:"false"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Browser sessions
	SessionCookieName   string `env:"SESSION_COOKIE_NAME" envDefault:"rb_session"`
	SessionCookieSecure bool   `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS" envDefault:"12"`
	SubmissionTTLHours  int    `env:"SUBMISSION_TOKEN_TTL_HOURS" envDefault:"24"`

	// Kafka
	KafkaEnabled     bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaReviewTopic string   `env:"KAFKA_REVIEW_TOPIC" envDefault:"reviewbooster.review.submitted"`

	// Pages
	DashboardSource           string `env:"DASHBOARD_SOURCE" envDefault:"backend"`
	GoogleReviewURLTemplate   string `env:"GOOGLE_REVIEW_URL_TEMPLATE" envDefault:"https://g.page/r/%s/review"`
	AuthResetRedirectURL      string `env:"AUTH_RESET_REDIRECT_URL"`
	LookupErrorsAsUnavailable bool   `env:"LOOKUP_ERRORS_AS_UNAVAILABLE" envDefault:"false"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load reviewbooster config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.Backend {
	case BackendSupabase, BackendPostgres:
	default:
		return fmt.Errorf("BACKEND must be %q or %q, got %q", BackendSupabase, BackendPostgres, c.Backend)
	}
	// Auth always goes through the Supabase project, whatever the data backend.
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseAnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if c.Backend == BackendPostgres {
		if c.PostgresURL == "" && c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_URL or POSTGRES_HOST is required for the postgres backend")
		}
		if c.PostgresURL == "" && (c.PostgresPort < 1 || c.PostgresPort > 65535) {
			return fmt.Errorf("invalid postgres port: %d", c.PostgresPort)
		}
	}
	switch c.DashboardSource {
	case DashboardBackend, DashboardSample:
	default:
		return fmt.Errorf("DASHBOARD_SOURCE must be %q or %q, got %q", DashboardBackend, DashboardSample, c.DashboardSource)
	}
	if c.BackendTimeoutSecs <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT_SECONDS must be > 0, got %d", c.BackendTimeoutSecs)
	}
	if c.BackendMaxRetries < 0 {
		return fmt.Errorf("BACKEND_MAX_RETRIES must be >= 0, got %d", c.BackendMaxRetries)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1.0 {
		return fmt.Errorf("BACKEND_BREAKER_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.BreakerFailureRatio)
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be > 0, got %d", c.SessionTTLHours)
	}
	if c.SubmissionTTLHours <= 0 {
		return fmt.Errorf("SUBMISSION_TOKEN_TTL_HOURS must be > 0, got %d", c.SubmissionTTLHours)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative, got rps=%f burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// ResetRedirectURL returns where password-reset emails send the user.
func (c *Config) ResetRedirectURL() string {
	if c.AuthResetRedirectURL != "" {
		return c.AuthResetRedirectURL
	}
	return strings.TrimRight(c.PublicURL, "/") + "/reset-password"
}

// HTTPClient returns the backend transport settings.
func (c *Config) HTTPClient() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = time.Duration(c.BackendTimeoutSecs) * time.Second
	hc.MaxRetries = c.BackendMaxRetries
	return hc
}

// CircuitBreaker returns the breaker settings for the named backend client.
func (c *Config) CircuitBreaker(name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  c.BreakerMaxRequests,
		Interval:     time.Duration(c.BreakerIntervalSecs) * time.Second,
		Timeout:      time.Duration(c.BreakerTimeoutSecs) * time.Second,
		FailureRatio: c.BreakerFailureRatio,
		MinRequests:  c.BreakerMinRequests,
	}
}

// Postgres returns the pgx pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		URL:             c.PostgresURL,
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// SessionTTL is the idle lifetime of a browser session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// SubmissionTTL is how long a claimed submission token is remembered.
func (c *Config) SubmissionTTL() time.Duration {
	return time.Duration(c.SubmissionTTLHours) * time.Hour
}
