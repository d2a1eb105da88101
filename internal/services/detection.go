package services

import (
	"context"
	"time"

	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/subscription"
)

// ExpenseSource feeds the detector its lookback window.
type ExpenseSource interface {
	ExpenseWindow(ctx context.Context, since time.Time) ([]core.Transaction, error)
}

// DetectionService runs subscription detection over a lookback window of
// stored expenses.
type DetectionService struct {
	source   ExpenseSource
	lookback int // months
	opts     subscription.Options
	logger   *log.Logger
}

func NewDetectionService(source ExpenseSource, lookbackMonths int, opts subscription.Options, logger *log.Logger) *DetectionService {
	if lookbackMonths < 1 {
		lookbackMonths = 12
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentDetect)
	}
	return &DetectionService{source: source, lookback: lookbackMonths, opts: opts, logger: logger}
}

// Detect loads the expense window ending at now and scans it for recurring
// payments.
func (s *DetectionService) Detect(ctx context.Context, now time.Time) (subscription.Report, error) {
	since := now.AddDate(0, -s.lookback, 0)
	window, err := s.source.ExpenseWindow(ctx, since)
	if err != nil {
		return subscription.Report{}, err
	}

	report := subscription.Detect(window, now, s.opts)

	s.logger.InfoContext(ctx, "Detection run finished",
		log.FieldOperation, log.OpDetect,
		"window_size", len(window),
		"subscriptions", len(report.Subscriptions),
		"upcoming", len(report.Upcoming),
		"monthly_total", core.FormatAmount(report.MonthlyTotal))
	return report, nil
}
