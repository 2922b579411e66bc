package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/draftforge/content-gateway/internal/auth"
	"github.com/draftforge/content-gateway/internal/cache"
	"github.com/draftforge/content-gateway/internal/collab"
	"github.com/draftforge/content-gateway/internal/config"
	"github.com/draftforge/content-gateway/internal/gateway"
	"github.com/draftforge/content-gateway/internal/jobs"
	"github.com/draftforge/content-gateway/internal/pipeline"
	"github.com/draftforge/content-gateway/internal/queue"
	"github.com/draftforge/content-gateway/internal/ratelimit"
	"github.com/draftforge/content-gateway/internal/server"
	"github.com/draftforge/content-gateway/internal/storage/sqldb"
	"github.com/draftforge/content-gateway/internal/telemetry"
	"github.com/draftforge/content-gateway/internal/tenant"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONTENTGW_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("content-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := sqldb.New(sqldb.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := server.NewMetrics(registry)

	submitter := jobs.NewSubmitter(rdb, logger)
	composer := collab.NewComposer(cfg.Services.ComposerURL)
	seo := collab.NewSEO(cfg.Services.SEOURL)

	orchestrator := pipeline.New(pipeline.Config{
		Store:          store,
		Composer:       composer,
		Miner:          seo,
		Sanitizer:      collab.NewSanitizer(cfg.Services.SanitizerURL),
		SEO:            seo,
		Products:       collab.NewProducts(cfg.Services.ProductsURL),
		Images:         collab.NewImages(cfg.Services.ImagesURL),
		Jobs:           submitter,
		Logger:         logger,
		Metrics:        metrics,
		RetryAttempts:  cfg.Retry.MaxAttempts,
		RetryBaseDelay: cfg.Retry.BaseDelay,
	})

	queueManager := queue.NewStoreManager(store, composer, logger, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)

	srv := server.New(cfg.Server.Port, logger, registry)

	dispatcher := gateway.NewDispatcher(gateway.Config{
		Router:   srv.Router,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret),
		Resolver: tenant.NewResolver(store, logger, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
		Cache:    cache.New(cfg.Cache.Capacity),
		Limiter:  ratelimit.New(),
		Metrics:  metrics,
		Logger:   logger,
	})
	gateway.NewAPI(store, orchestrator, queueManager, submitter, logger).Routes(dispatcher)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigChan:
	}

	logger.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("gateway shutdown complete")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
