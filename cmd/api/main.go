package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"erms/api/internal/cache"
	"erms/api/internal/config"
	"erms/api/internal/database"
	"erms/api/internal/events"
	"erms/api/internal/handlers"
	"erms/api/internal/jobs"
	"erms/api/internal/log"
	"erms/api/internal/metrics"
	"erms/api/internal/repository"
	"erms/api/internal/security"
	"erms/api/internal/server"
	"erms/api/internal/service"
)

// credentialStore is what both store drivers provide.
type credentialStore interface {
	service.CredentialStore
	jobs.Sweeper
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "erms-api")
	ctx := context.Background()

	store, closeStore := openStore(ctx, cfg, logger)
	checks := map[string]handlers.HealthCheck{"store": store.Ping}

	var publisher events.Publisher = events.Nop{}
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; auth events will not be published")
	} else {
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.Stream)
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens, err := security.NewTokenCodec(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token settings")
	}
	passwords, err := security.NewPasswordHasher(security.Argon2Params{
		Time:    cfg.Security.Argon2.Time,
		Memory:  cfg.Security.Argon2.Memory,
		Threads: cfg.Security.Argon2.Threads,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid argon2 settings")
	}

	authService := service.NewAuthService(
		store,
		tokens,
		passwords,
		cfg.Security.MaxSessions,
		publisher,
		metrics.NewAuth(registry),
		logger.With().Str("component", "auth").Logger(),
	)

	if cfg.Bootstrap.Enabled() {
		created, err := authService.EnsureAdmin(ctx, service.RegisterInput{
			Email:    cfg.Bootstrap.AdminEmail,
			Username: cfg.Bootstrap.AdminUsername,
			Password: cfg.Bootstrap.AdminPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("bootstrap admin failed")
		}
		if created {
			logger.Info().Str("email", cfg.Bootstrap.AdminEmail).Msg("bootstrap admin created")
		}
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, checks)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, registry, metrics.NewHTTP(registry))

	scheduler := jobs.NewScheduler(store, cfg.Jobs.SweepSpec, logger.With().Str("component", "jobs").Logger())
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, closeStore, redisClient)
}

func openStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (credentialStore, func()) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn().Msg("using in-memory credential store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}
	return repository.NewUserRepository(pool), pool.Close
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, closeStore func(), redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler jobs still running at shutdown")
	}

	closeStore()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
