package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"erms/api/internal/audit"
	"erms/api/internal/cache"
	"erms/api/internal/config"
	"erms/api/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "erms-auditor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	consumer := audit.NewConsumer(client, audit.ConsumerConfig{
		Stream:        cfg.Events.Stream,
		Group:         cfg.Events.Group,
		Consumer:      cfg.Events.Consumer,
		ClaimInterval: cfg.Events.ClaimInterval,
	}, logger, audit.NewProcessor(logger.With().Str("component", "audit").Logger()))

	logger.Info().Str("stream", cfg.Events.Stream).Msg("auditor consuming")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("auditor exited")
}
