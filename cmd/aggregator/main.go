package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"main/internal/application/service/aggregate"
	"main/internal/config"
	"main/internal/infrastructure/bus"
	"main/internal/infrastructure/ledger"
	"main/internal/infrastructure/mirror"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ledgerRepo, err := ledger.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init trade ledger: %v", err)
	}
	defer ledgerRepo.Close()

	if err := ledgerRepo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("failed to ensure ledger schema: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	eventBus := bus.New(redisClient, cfg.Events.Topic, logger)
	stateMirror := mirror.New(redisClient)

	engine := aggregate.NewService(eventBus, ledgerRepo, stateMirror, logger)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("aggregate service stopped: %v", err)
	}
	logger.Info("aggregate service stopped")
}
