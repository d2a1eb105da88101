package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pbialon/budgie/internal/amqp"
	"github.com/pbialon/budgie/internal/cache"
	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/config"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/services"
	"github.com/pbialon/budgie/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting categorize-worker")

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

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// One message means "drain the backlog": batches run until nothing is
	// left so a single import needs a single message.
	handle := func(msg *amqp.CategorizeBatchMessage) error {
		size := msg.BatchSize
		if size < 1 {
			size = cfg.BatchSize
		}
		proc := services.NewBatchProcessor(repo, resolver, size,
			logger.WithComponent(log.ComponentCategorize))

		for {
			result, err := proc.Run(ctx)
			if err != nil {
				return err
			}
			if !result.HasMore {
				return nil
			}
			if result.Categorized == 0 {
				// Everything left in the backlog failed; retrying
				// immediately would spin.
				logger.Warn("Batch made no progress, leaving backlog for next run",
					log.FieldRemaining, result.Remaining)
				return nil
			}
		}
	}

	go func() {
		if err := amqpClient.ConsumeCategorizeBatch(ctx, handle); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Shutting down worker...")
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
