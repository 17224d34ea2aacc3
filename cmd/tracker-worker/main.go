package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mqcontracts "trackhub/contracts/mq"
	"trackhub/internal/cache"
	"trackhub/internal/config"
	"trackhub/internal/mqhandler"
	"trackhub/internal/repository"
	"trackhub/internal/service"
	"trackhub/pkg/db"
	"trackhub/pkg/logger"
	"trackhub/pkg/mq"
	"trackhub/pkg/otel"
	"trackhub/pkg/outbox"
	"trackhub/pkg/redis"
	"trackhub/pkg/util"
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

	log.Info("Starting tracker-worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("queue", cfg.Worker.Queue),
	)

	shutdownTracing, err := otel.Init("tracker-worker", version, cfg.OTel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Worker.RetryTTL)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outbox.NewRepository(dbConn), publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize)
	go dispatcher.Start(ctx)

	projectService := service.NewProjectService(
		repository.NewProjectRepository(dbConn),
		repository.NewMilestoneRepository(dbConn),
		cache.NewCompletionCache(rdb, cfg.Redis.CompletionTTL, log),
		log,
	)
	progressHandler := mqhandler.NewProgressRecomputedHandler(projectService, deduper, retryCounter, log)

	log.Info("Init consumer",
		zap.String("queue", cfg.Worker.Queue),
		zap.String("routing_key", mqcontracts.RoutingKeyProgressRecomputed),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Worker.Queue, mqcontracts.RoutingKeyProgressRecomputed, log)
	if err != nil {
		log.Fatal("Consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(progressHandler.Handle)
	consumer.SetDeadLetterPublisher(publisher, "tracker-worker")

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Progress consumer crashed", zap.Error(err))
			stop()
		}
	}()

	// HTTP Server (health checks + metrics)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		if !consumer.IsConnected() || !publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: cfg.ServerAddr(), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("tracker-worker running")
	<-ctx.Done()

	log.Info("Shutting down tracker-worker gracefully...")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("tracker-worker shutdown complete")
}
