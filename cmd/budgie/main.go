package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pbialon/budgie/internal/amqp"
	"github.com/pbialon/budgie/internal/cache"
	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/config"
	apphttp "github.com/pbialon/budgie/internal/http"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/services"
	"github.com/pbialon/budgie/internal/storage"
	"github.com/pbialon/budgie/internal/subscription"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier, err := categorize.NewGeminiClassifier(ctx, cfg.GeminiModel)
	if err != nil {
		logger.Error("Failed to initialize Gemini classifier", log.FieldError, err)
		os.Exit(1)
	}

	catalog := cache.NewCatalog(repo.ListCategories, cfg.CatalogCacheTTL)
	resolver := categorize.NewResolver(repo, catalog, classifier, repo,
		logger.WithComponent(log.ComponentCategorize))

	catSvc := services.NewCategorizationService(repo, resolver,
		logger.WithComponent(log.ComponentCategorize))
	batch := services.NewBatchProcessor(repo, resolver, cfg.BatchSize,
		logger.WithComponent(log.ComponentCategorize))

	opts := subscription.DefaultOptions()
	opts.MinOccurrences = cfg.MinOccurrences
	opts.Horizon = time.Duration(cfg.HorizonDays) * 24 * time.Hour
	detector := services.NewDetectionService(repo, cfg.LookbackMonths, opts,
		logger.WithComponent(log.ComponentDetect))

	// The broker is optional for the API: imports fall back to an inline
	// batch when it is absent.
	var publisher apphttp.BatchPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.Warn("AMQP unavailable, imports will categorize inline", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, repo, catSvc, batch, detector, publisher, catalog,
		cfg.BatchSize, logger.WithComponent(log.ComponentHTTP))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting budgie server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
