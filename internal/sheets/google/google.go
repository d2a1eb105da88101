// Package google publishes subscription reports to a Google Sheets
// spreadsheet using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/pbialon/budgie/internal/core"
	ports "github.com/pbialon/budgie/internal/sheets"
	"github.com/pbialon/budgie/internal/subscription"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	reportSheet   string
}

var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client for the given spreadsheet. Credentials come
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, reportSheet string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(reportSheet) == "" {
		reportSheet = "Subscriptions"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reportSheet:   reportSheet,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// WriteReport replaces the report sheet's contents with the latest detection
// run.
func (c *Client) WriteReport(ctx context.Context, report subscription.Report, now time.Time) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:F", c.reportSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	rows := reportRows(report, now)
	vr := &gsheet.ValueRange{Values: rows}
	writeRng := fmt.Sprintf("%s!A1", c.reportSheet)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", writeRng, err)
	}
	return nil
}

// reportRows lays out the spreadsheet: a subscriptions table, the monthly
// total, then the upcoming payments within the horizon.
func reportRows(report subscription.Report, now time.Time) [][]any {
	rows := [][]any{
		{"Subscription report", now.Format("2006-01-02")},
		{},
		{"Merchant", "Cadence", "Amount", "Monthly", "Confidence", "Next charge"},
	}
	for _, s := range report.Subscriptions {
		rows = append(rows, []any{
			s.MerchantName,
			string(s.Cadence),
			core.FormatAmount(s.Amount),
			core.FormatAmount(s.MonthlyAmount()),
			fmt.Sprintf("%.2f", s.Confidence),
			s.NextDate().Format("2006-01-02"),
		})
	}
	rows = append(rows,
		[]any{},
		[]any{"Monthly total", core.FormatAmount(report.MonthlyTotal)},
		[]any{},
		[]any{"Upcoming", "Date", "Amount"})
	for _, u := range report.Upcoming {
		rows = append(rows, []any{
			u.MerchantName,
			u.Date.Format("2006-01-02"),
			core.FormatAmount(u.Amount),
		})
	}
	return rows
}
