package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koios/iconforge/internal/amqp"
	"github.com/koios/iconforge/internal/bundle"
	"github.com/koios/iconforge/internal/config"
	"github.com/koios/iconforge/internal/handlers"
	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/internal/redis"
	"github.com/koios/iconforge/pkg/models"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := models.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load platform catalog", zap.Error(err))
	}

	pool := imaging.NewWorkerPool(cfg.Generation.ResizeWorkers, logger)
	pool.Start()

	assembler := bundle.NewAssembler(catalog, pool, logger).
		WithMaxSourcePixels(cfg.Generation.MaxSourcePixels)

	var cache *bundle.RedisCache
	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Archive cache disabled", zap.Error(err))
		} else {
			cache = bundle.NewRedisCache(client, cfg.Redis.CacheTTLDuration())
			defer cache.Close()
			assembler.WithCache(cache)
		}
	}

	validator := handlers.NewValidator(catalog, cfg.Generation.MaxUploadBytes)
	generator := handlers.NewGenerator(assembler, validator,
		cfg.Generation.MinRecommendedSize, cfg.Generation.ProcessingTimeoutDuration(), logger)

	if cfg.AMQP.URL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQP, logger)
		if err != nil {
			logger.Warn("Generation events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			generator.WithPublisher(publisher)
		}
	}

	iconHandler := handlers.NewIconHandler(generator, logger)
	if cache != nil {
		iconHandler.WithCacheCheck(cache)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handlers.NewRouter(iconHandler, cfg.Server.CORSAllowedOrigins, logger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.Int("platforms", len(catalog.IDs())),
		zap.Int("resize_workers", pool.Workers()),
		zap.Bool("archive_cache", cache != nil),
		zap.Bool("events", cfg.AMQP.URL != ""))

	// Wait for interrupt signal or a fatal server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Stop the resize workers once no request can submit to them
	pool.Stop()

	logger.Info("Server shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", level, err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
