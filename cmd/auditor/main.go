package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"auditor/internal/api"
	"auditor/internal/audit"
	"auditor/internal/checks"
	"auditor/internal/config"
	"auditor/internal/crawl"
	"auditor/internal/fetch"
	"auditor/internal/monitoring"
	"auditor/internal/storage"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()
	if err := pgStore.Init(context.Background()); err != nil {
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}
	redisStore := storage.NewRedisStore(cfg.RedisAddr)

	// Initialize Monitoring
	metrics := monitoring.NewMetrics()

	// Initialize Pipeline
	fetcher := fetch.NewFetcher(cfg.FetchTimeoutDuration(), cfg.UserAgent, logger)
	crawler := crawl.NewCrawler(pgStore, redisStore, fetcher, metrics, logger,
		cfg.CrawlConcurrency, cfg.MaxPages)
	engine := checks.NewEngine(checks.Registry(), fetcher, metrics, logger,
		cfg.CheckConcurrency)
	runner := audit.NewRunner(pgStore, crawler, engine, redisStore, metrics, logger,
		cfg.StalenessThresholdDuration())
	cleaner := audit.NewCleaner(pgStore, metrics, logger,
		cfg.EphemeralRetentionDuration())

	// Scheduled retention sweeps
	scheduler := cron.New()
	if cfg.CleanupSchedule != "" {
		_, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := cleaner.Run(ctx); err != nil {
				logger.Error("scheduled cleanup failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("invalid cleanup schedule", zap.Error(err))
		}
		scheduler.Start()
	}

	// Initialize API Server
	server := api.NewServer(cfg, runner, cleaner, pgStore, redisStore, metrics, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
