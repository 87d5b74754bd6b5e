package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/audit"
	"github.com/d60-Lab/fulfillment/internal/cache"
	"github.com/d60-Lab/fulfillment/internal/leader"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/internal/service"
	"github.com/d60-Lab/fulfillment/pkg/database"
	"github.com/d60-Lab/fulfillment/pkg/logger"
	"github.com/d60-Lab/fulfillment/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.Init(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	log.Info("Starting fulfillment worker",
		zap.String("name", cfg.Server.Name),
		zap.String("env", cfg.Server.Env))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			log.Warn("Sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Server.Name, &cfg.Tracing)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect database", zap.Error(err))
	}
	store := repository.NewStore(db)

	// sinks are optional; a missing backend only loses that side channel
	var sinks []service.Sink
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn("Redis connection failed, order cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			sinks = append(sinks, cache.NewOrderCache(client, cfg.Fulfillment.OrderCacheTTL))
			log.Info("Redis connected successfully")
		}
	}
	if cfg.MongoDB.URI != "" {
		auditSink, err := audit.NewMongoSink(ctx, &cfg.MongoDB)
		if err != nil {
			log.Warn("MongoDB connection failed, audit log disabled", zap.Error(err))
		} else {
			defer func() { _ = auditSink.Close(context.Background()) }()
			sinks = append(sinks, auditSink)
			log.Info("MongoDB connected successfully")
		}
	}

	dispatcher := service.NewDispatcher(store, cfg.Fulfillment, sinks...)
	stopDispatcher := dispatcher.Start()

	sweeper := service.NewSweeper(store, cfg.Fulfillment)
	sweeperDone := make(chan struct{})
	if len(cfg.Etcd.Endpoints) > 0 {
		hostname, _ := os.Hostname()
		elector, err := leader.NewElector(&cfg.Etcd, hostname+"-"+uuid.NewString()[:8])
		if err != nil {
			log.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer elector.Close()
		go func() {
			defer close(sweeperDone)
			elector.Lead(ctx, sweeper.Run)
		}()
	} else {
		log.Info("No etcd endpoints configured, running sweeper on this replica")
		go func() {
			defer close(sweeperDone)
			sweeper.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stopDispatcher(shutdownCtx); err != nil {
		log.Error("Dispatcher did not stop in time", zap.Error(err))
	}
	select {
	case <-sweeperDone:
	case <-shutdownCtx.Done():
		log.Error("Sweeper did not stop in time")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Tracing shutdown failed", zap.Error(err))
	}
	log.Info("Service stopped")
}
