package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	docs "main/docs"
	"main/internal/config"
	"main/internal/infrastructure/bus"
	"main/internal/infrastructure/ledger"
	"main/internal/infrastructure/mirror"
	infrahttp "main/internal/interfaces/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
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

	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	ledgerRepo, err := ledger.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init trade ledger: %v", err)
	}
	defer ledgerRepo.Close()

	// Either service may come up first; the DDL is idempotent.
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

	stateMirror := mirror.New(redisClient)
	eventBus := bus.New(redisClient, cfg.Events.Topic, logger)

	hub := infrahttp.NewHub(logger)
	relay := infrahttp.NewRelay(eventBus, hub, logger)
	handler := infrahttp.NewHandler(stateMirror, ledgerRepo, hub)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := relay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("gateway listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Errorf("gateway stopped: %v", err)
		return
	}
	logger.Info("gateway stopped")
}
