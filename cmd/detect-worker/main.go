package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/pbialon/budgie/internal/config"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/services"
	"github.com/pbialon/budgie/internal/sheets"
	gsheet "github.com/pbialon/budgie/internal/sheets/google"
	mem "github.com/pbialon/budgie/internal/sheets/memory"
	"github.com/pbialon/budgie/internal/storage"
	"github.com/pbialon/budgie/internal/subscription"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentDetect)
	log.SetDefault(logger)

	logger.Info("Starting detect-worker")

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

	opts := subscription.DefaultOptions()
	opts.MinOccurrences = cfg.MinOccurrences
	opts.Horizon = time.Duration(cfg.HorizonDays) * 24 * time.Hour
	detector := services.NewDetectionService(repo, cfg.LookbackMonths, opts, logger)

	var writer sheets.ReportWriter
	if cfg.SheetsSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsReportSheet)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets report export enabled",
			"spreadsheet_id", cfg.SheetsSpreadsheetID,
			"sheet", cfg.SheetsReportSheet)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - no SHEETS_SPREADSHEET_ID provided")
	}

	run := func() {
		now := time.Now()
		report, err := detector.Detect(ctx, now)
		if err != nil {
			logger.Error("Detection run failed", log.FieldError, err)
			return
		}
		if err := writer.WriteReport(ctx, report, now); err != nil {
			logger.Error("Report export failed", log.FieldError, err)
		}
	}

	// One run at startup so a fresh deployment has a report before the
	// first scheduled tick.
	run()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.DetectSchedule, run); err != nil {
		logger.Error("Invalid detection schedule", log.FieldError, err, "schedule", cfg.DetectSchedule)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Detection scheduled", "schedule", cfg.DetectSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
	logger.Info("Worker shutdown complete")
}
