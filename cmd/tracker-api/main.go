package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trackhub/internal/cache"
	"trackhub/internal/config"
	"trackhub/internal/handler"
	"trackhub/internal/httpserver"
	"trackhub/internal/repository"
	"trackhub/internal/service"
	"trackhub/pkg/db"
	"trackhub/pkg/logger"
	"trackhub/pkg/mq"
	"trackhub/pkg/otel"
	"trackhub/pkg/outbox"
	"trackhub/pkg/redis"
)

const version = "0.1.0"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init("tracker-api", version, cfg.OTel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher（仅用于 outbox 重放）
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	projectRepo := repository.NewProjectRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	moduleRepo := repository.NewModuleRepository(dbConn)
	featureRepo := repository.NewFeatureRepository(dbConn)
	outboxRepo := outbox.NewRepository(dbConn)

	// Services
	completionCache := cache.NewCompletionCache(rdb, cfg.Redis.CompletionTTL, log)
	projectService := service.NewProjectService(projectRepo, milestoneRepo, completionCache, log)
	trackingService := service.NewTrackingService(dbConn, milestoneRepo, moduleRepo, featureRepo, cfg.Weighting(), log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	router := httpserver.NewRouter(httpserver.Handlers{
		Projects: handler.NewProjectHandler(projectService, log),
		Tracking: handler.NewTrackingHandler(trackingService, log),
		Admin:    handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, dbConn, log)

	srv := httpserver.NewServer(cfg.ServerAddr(), router.Engine, 30*time.Second, log)
	log.Info("Starting tracker-api",
		zap.String("addr", cfg.ServerAddr()),
		zap.String("weighting", cfg.Tracking.Weighting),
	)
	if err := srv.Run(ctx); err != nil {
		log.Error("HTTP server failed", zap.Error(err))
		return
	}
	log.Info("tracker-api shutdown complete")
}
