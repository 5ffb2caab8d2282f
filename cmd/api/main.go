package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/toko-tax/internal/app"
	"github.com/noah-isme/toko-tax/internal/config"
	"github.com/noah-isme/toko-tax/internal/health"
	"github.com/noah-isme/toko-tax/internal/jurisdiction"
	"github.com/noah-isme/toko-tax/internal/obs"
	"github.com/noah-isme/toko-tax/internal/tax"
	"github.com/noah-isme/toko-tax/internal/taxquote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "toko-tax",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &app.Dependencies{
		Context:        ctx,
		Validator:      app.NewValidator(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}

	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			migrateDatabase(logger, cfg.DatabaseURL)
		}
		deps.DB = connectDatabase(ctx, logger, cfg.DatabaseURL)
		defer deps.DB.Close()
	}
	if cfg.RedisURL != "" {
		deps.Redis = connectRedis(ctx, logger, cfg.RedisURL, cfg.MetricsEnabled)
		defer func() {
			if err := deps.Redis.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	resolver, taxCodes := jurisdictionSource(logger, cfg, deps.DB)
	if deps.Redis != nil {
		resolver = jurisdiction.NewCached(jurisdiction.CachedConfig{
			Next:   resolver,
			Cache:  jurisdiction.NewCache(deps.Redis, cfg.JurisdictionCacheTTL),
			Logger: logger,
		})
	}
	deps.Resolver = resolver
	deps.TaxCodes = taxCodes

	store, err := app.NewLimiterStore(deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	deps.Limiter, err = app.NewLimiter(store, cfg.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	quoteHandler := taxquote.NewHandler(taxquote.HandlerConfig{
		Engine:          deps.NewEngine(logger),
		Validator:       deps.Validator,
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Checker: readinessChecker{db: deps.DB, redis: deps.Redis}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(app.RateLimitMiddleware(deps.Limiter))
		quoteHandler.Routes(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()
	go func() {
		<-stop.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func migrateDatabase(logger zerolog.Logger, databaseURL string) {
	m, err := jurisdiction.NewMigrator(databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrations")
		}
	}()
	if err := app.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
}

func connectDatabase(ctx context.Context, logger zerolog.Logger, databaseURL string) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-tax"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func connectRedis(ctx context.Context, logger zerolog.Logger, redisURL string, metrics bool) *redis.Client {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// jurisdictionSource prefers Postgres and falls back to the seed file.
func jurisdictionSource(logger zerolog.Logger, cfg *config.Config, pool *pgxpool.Pool) (tax.Resolver, tax.TaxCodeProvider) {
	if pool != nil {
		if cfg.JurisdictionSeedFile != "" {
			logger.Warn().Str("seed", cfg.JurisdictionSeedFile).Msg("DATABASE_URL set, ignoring jurisdiction seed file; load it with the seeder")
		}
		pg := jurisdiction.Postgres{Q: pool}
		return pg, pg
	}
	seed, err := jurisdiction.LoadSeed(cfg.JurisdictionSeedFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load jurisdiction seed")
	}
	static := jurisdiction.NewStatic(seed)
	logger.Info().Int("stores", len(seed.Stores)).Msg("jurisdictions loaded from seed")
	return static, static
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return health.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return health.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
