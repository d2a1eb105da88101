// Package sheets defines the outbound port for publishing subscription
// reports to a spreadsheet.
package sheets

import (
	"context"
	"time"

	"github.com/pbialon/budgie/internal/subscription"
)

// ReportWriter publishes one detection report. The spreadsheet always shows
// the latest run; writers replace, not append.
type ReportWriter interface {
	WriteReport(ctx context.Context, report subscription.Report, now time.Time) error
}
