package google

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/subscription"
)

func TestReportRowsLayout(t *testing.T) {
	now := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	report := subscription.Report{
		Subscriptions: []core.Subscription{
			{
				MerchantName: "Netflix",
				Amount:       decimal.RequireFromString("29.99"),
				Cadence:      core.Monthly,
				Confidence:   0.9,
				Occurrences:  []time.Time{time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)},
			},
			{
				MerchantName: "Backup Co",
				Amount:       decimal.RequireFromString("120"),
				Cadence:      core.Yearly,
				Confidence:   0.75,
				Occurrences:  []time.Time{time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
			},
		},
		MonthlyTotal: decimal.RequireFromString("39.99"),
		Upcoming: []core.UpcomingPayment{
			{
				Date:         time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
				MerchantName: "Netflix",
				Amount:       decimal.RequireFromString("29.99"),
			},
		},
	}

	rows := reportRows(report, now)

	if got := rows[0][0]; got != "Subscription report" {
		t.Errorf("title = %v", got)
	}
	if got := rows[2][0]; got != "Merchant" {
		t.Errorf("header row misplaced: %v", rows[2])
	}

	netflix := rows[3]
	if netflix[0] != "Netflix" || netflix[1] != "monthly" || netflix[2] != "29.99" || netflix[3] != "29.99" {
		t.Errorf("netflix row = %v", netflix)
	}
	if netflix[5] != "2025-06-04" {
		t.Errorf("next charge = %v, want 2025-06-04", netflix[5])
	}

	backup := rows[4]
	if backup[1] != "yearly" || backup[3] != "10.00" {
		t.Errorf("yearly row not normalized to monthly: %v", backup)
	}

	var totalRow []any
	for _, row := range rows {
		if len(row) == 2 && row[0] == "Monthly total" {
			totalRow = row
		}
	}
	if totalRow == nil || totalRow[1] != "39.99" {
		t.Errorf("monthly total row = %v, want 39.99", totalRow)
	}

	last := rows[len(rows)-1]
	if last[0] != "Netflix" || last[1] != "2025-06-04" || last[2] != "29.99" {
		t.Errorf("upcoming row = %v", last)
	}
}
