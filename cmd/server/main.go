package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dealflow/internal/api"
	"dealflow/internal/api/handlers"
	"dealflow/internal/api/middleware"
	"dealflow/internal/engine/apikeys"
	"dealflow/internal/engine/deals"
	"dealflow/internal/engine/ratelimit"
	"dealflow/internal/engine/webhooks"
	"dealflow/internal/pkg/logger"
	"dealflow/internal/platform/audit"
	"dealflow/internal/platform/auth"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/database"
	"dealflow/internal/platform/metrics"
	"dealflow/internal/platform/redis"
	"dealflow/internal/platform/repositories"
	"dealflow/internal/workers"
)

func main() {
	configPath := flag.String("config", os.Getenv("DEALFLOW_CONFIG"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logr := logger.Init(cfg.Logging)

	if err := run(cfg, logr); err != nil {
		logr.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logr zerolog.Logger) error {
	ctx := context.Background()

	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret must be set (DEALFLOW_JWT_SECRET)")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, logr); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Rate limit counters: redis when configured, process memory otherwise.
	var (
		rdb   *goredis.Client
		store ratelimit.Store
	)
	if cfg.Redis.URL != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		store = ratelimit.NewRedisStore(rdb)
	} else {
		logr.Warn().Msg("redis.url not set, rate limits are per process")
		mem := ratelimit.NewMemoryStore(clockwork.NewRealClock(), 0)
		defer mem.Close()
		store = mem
	}

	pool := workers.NewPool(cfg.Webhooks.Workers, logr)

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	keyRepo := repositories.NewAPIKeyRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(db, pool, logr)
	worker := webhooks.NewWorker(pool, webhooks.NewHTTPSender(cfg.Webhooks.Timeout), logr, webhooks.WorkerOptions{
		Schedule: cfg.Webhooks.RetrySchedule,
		Timeout:  cfg.Webhooks.Timeout,
		Metrics:  m,
	})
	dispatcher := webhooks.NewDispatcher(webhookRepo, pool, worker, nil, logr)
	authenticator := apikeys.NewAuthenticator(keyRepo, cfg.APIKeys.Prefix, pool, nil, m, logr)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Requests, cfg.RateLimit.Window, m, logr)

	router := api.NewRouter(&api.Dependencies{
		AuthHandler:    handlers.NewAuthHandler(userRepo, tokenSvc, auditLog, logr),
		DealHandler:    handlers.NewDealHandler(deals.NewService(deals.NewRepository(db), dispatcher, nil), logr),
		WebhookHandler: handlers.NewWebhookHandler(webhooks.NewService(webhookRepo), auditLog, logr),
		APIKeyHandler:  handlers.NewAPIKeyHandler(apikeys.NewService(keyRepo, cfg.APIKeys.Prefix), auditLog, logr),
		AuditHandler:   handlers.NewAuditHandler(auditLog, logr),
		HealthHandler:  handlers.NewHealthHandler(db, rdb),
		MetricsHandler: handlers.NewMetricsHandler(reg),

		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc),
		APIKeyMiddleware:    middleware.NewAPIKeyMiddleware(authenticator, logr),
		RateLimitMiddleware: middleware.NewRateLimitMiddleware(limiter),

		Metrics: m,
		Logger:  logr,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info().Str("addr", srv.Addr).Int("webhook_workers", cfg.Webhooks.Workers).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logr.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error().Err(err).Msg("http server shutdown")
	}

	// Retries still waiting on a timer are not persisted anywhere and are lost here.
	if dropped := worker.Stop(); dropped > 0 {
		logr.Warn().Int("dropped_retries", dropped).Msg("pending webhook retries discarded")
	}
	if err := pool.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logr.Error().Err(err).Msg("worker pool shutdown")
	}

	logr.Info().Msg("server stopped")
	return nil
}
