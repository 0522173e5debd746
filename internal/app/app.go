package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/internal/config"
	"github.com/cybertron15/review-booster/internal/event"
	handler "github.com/cybertron15/review-booster/internal/handler/http"
	"github.com/cybertron15/review-booster/internal/repository"
	"github.com/cybertron15/review-booster/internal/repository/postgres"
	"github.com/cybertron15/review-booster/internal/repository/sample"
	"github.com/cybertron15/review-booster/internal/repository/supabase"
	"github.com/cybertron15/review-booster/internal/service"
	"github.com/cybertron15/review-booster/internal/session"
	"github.com/cybertron15/review-booster/pkg/database"
	"github.com/cybertron15/review-booster/pkg/health"
	"github.com/cybertron15/review-booster/pkg/httpclient"
	pkgkafka "github.com/cybertron15/review-booster/pkg/kafka"
	"github.com/cybertron15/review-booster/pkg/middleware"
	"github.com/cybertron15/review-booster/pkg/tracing"
)

// ServiceName identifies the process in logs, metrics and traces.
const ServiceName = "reviewbooster"

// Version is stamped at build time with -ldflags.
var Version = "dev"

// App wires together all dependencies and runs the review booster.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	reviews        *service.ReviewService
	httpServer     *http.Server
	stopLimiter    context.CancelFunc
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	fail := func(err error) (*App, error) {
		_ = a.close()
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// The Supabase project always serves auth; it also serves data unless
	// BACKEND=postgres.
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg.HTTPClient()),
		cfg.CircuitBreaker("supabase"),
		logger,
	)
	client := supabase.NewClient(supabase.Config{
		URL:    cfg.SupabaseURL,
		APIKey: cfg.SupabaseAnonKey,
	}, breaker)
	gotrue := auth.NewGoTrue(client)

	healthHandler := health.NewHandler()

	var (
		businesses repository.BusinessRepository
		responses  repository.ReviewRepository
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		a.pool = pool
		businesses = postgres.NewBusinessRepository(pool)
		responses = postgres.NewReviewRepository(pool)
		healthHandler.Register("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	default:
		repo := supabase.NewBusinessRepository(client)
		businesses = repo
		responses = supabase.NewReviewRepository(client)
		healthHandler.Register("supabase", repo.Ping)
	}
	healthHandler.RegisterOptional("supabase_auth", gotrue.Ping)
	healthHandler.RegisterOptional("supabase_breaker", breaker.Healthy)

	// Redis holds browser sessions and submission tokens.
	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		ClientName: ServiceName,
	})
	if err != nil {
		return fail(fmt.Errorf("connect to redis: %w", err))
	}
	a.redis = rdb
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	sessions := session.NewStore(rdb, cfg.SessionTTL(), cfg.SubmissionTTL())
	healthHandler.Register("redis", sessions.Ping)

	// Submission events are optional.
	var publisher service.ReviewPublisher = event.Noop{}
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		a.producer = producer
		publisher = event.NewProducer(producer, cfg.KafkaReviewTopic, logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// Build the dependency graph.
	reviews := service.NewReviewService(businesses, responses, publisher, logger)
	a.reviews = reviews

	var dashboardSource service.ReviewLister = responses
	if cfg.DashboardSource == config.DashboardSample {
		dashboardSource = sample.NewReviewSource()
	}

	var validator middleware.TokenValidator
	if cfg.SupabaseJWTSecret != "" {
		validator = auth.NewJWTVerifier(cfg.SupabaseJWTSecret, auth.DefaultAudience).Validator()
	}

	var limiter *middleware.RateLimiter
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	a.stopLimiter = stopLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(limiterCtx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// HTTP router.
	router, err := handler.NewRouter(handler.Dependencies{
		ServiceName:    ServiceName,
		Reviews:        reviews,
		Flow:           service.NewReviewFlow(reviews, sessions),
		Admin:          service.NewAdminService(gotrue, cfg.ResetRedirectURL(), logger),
		Dashboard:      service.NewDashboardService(dashboardSource, reviews),
		Sessions:       sessions,
		Cookie:         session.Cookie{Name: cfg.SessionCookieName, Secure: cfg.SessionCookieSecure},
		Health:         healthHandler,
		TokenValidator: validator,
		RateLimiter:    limiter,
		Pages: handler.PageOptions{
			GoogleReviewURL:     cfg.GoogleReviewURLTemplate,
			SeparateUnavailable: cfg.LookupErrorsAsUnavailable,
		},
		PublicURL:      cfg.PublicURL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return fail(fmt.Errorf("build router: %w", err))
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openPostgres connects the pool, registers its metrics and optionally
// applies the embedded migrations.
func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}
	return pool, nil
}

// Migrate applies the embedded migrations to the configured database and
// returns.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed", slog.String("database", cfg.PostgresDB))
	return nil
}

// Run starts the HTTP server, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("backend", a.cfg.Backend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Warm the business directory. A failure is retried on first use.
	go func() {
		if err := a.reviews.Load(ctx); err != nil {
			a.logger.Warn("business directory warm-up failed", slog.String("error", err.Error()))
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// close releases the clients opened by NewApp. It is safe on a partially
// built App.
func (a *App) close() error {
	var errs []error
	if a.stopLimiter != nil {
		a.stopLimiter()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = producer.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}
