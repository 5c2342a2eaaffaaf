package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicstream/internal/app/registry"
	"civicstream/internal/app/server"
	"civicstream/internal/app/worker"
	"civicstream/internal/config"
	"civicstream/internal/core/services"
	"civicstream/internal/platform/logger"
	"civicstream/internal/platform/telemetry"
	"civicstream/internal/plugins/postgres"
	redisPlugin "civicstream/internal/plugins/redis"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting gateway")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "DSN", cfg.Postgres.DSN)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	notifRepo := postgres.NewNotificationRepo(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb)
	eventQueue := redisPlugin.NewRedisEventQueue(log, rdb)

	// Core Services
	hub := registry.NewRegistry()
	txManager := services.NewTxManager(pdb)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	dispatchSvc := services.NewDispatchService(log, hub, eventQueue)
	presenceSvc := services.NewPresenceService(log, presStore, dispatchSvc,
		cfg.Presence.TTL, cfg.Presence.HeartbeatInterval)
	notifSvc := services.NewNotificationService(log, notifRepo, dispatchSvc, txManager)

	wrkr, err := worker.NewEventWorker(log, eventQueue, hub, cfg.Worker.EventGroup, cfg.Worker.SeenCache)
	if err != nil {
		log.Error("worker setup failed", "err", err)
		return
	}
	if err := wrkr.Run(ctx); err != nil {
		log.Error("worker subscribe failed", "err", err)
		return
	}

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr,
		tokenSvc, dispatchSvc, presenceSvc, notifSvc, hub)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
