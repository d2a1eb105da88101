package subscription

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbialon/budgie/internal/core"
)

func monthlyCharges(merchant, amount string, months, day int, end time.Time) []core.Transaction {
	txs := make([]core.Transaction, 0, months)
	for i := months - 1; i >= 0; i-- {
		d := time.Date(end.Year(), end.Month(), day, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		txs = append(txs, core.Transaction{
			ID:             merchant + d.Format("2006-01"),
			Amount:         decimal.RequireFromString(amount),
			Date:           d,
			RawDescription: merchant + " payment",
			MerchantKey:    merchant,
		})
	}
	return txs
}

func TestDetect_MonthlySubscription(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	window := monthlyCharges("netflix", "29.99", 12, 5, now)

	report := Detect(window, now, DefaultOptions())

	if len(report.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(report.Subscriptions))
	}
	sub := report.Subscriptions[0]
	if sub.MerchantKey != "netflix" {
		t.Errorf("merchant key = %q, want netflix", sub.MerchantKey)
	}
	if sub.Cadence != core.Monthly {
		t.Errorf("cadence = %q, want monthly", sub.Cadence)
	}
	if len(sub.Occurrences) != 12 {
		t.Errorf("occurrences = %d, want 12", len(sub.Occurrences))
	}
	want := decimal.RequireFromString("29.99")
	if !report.MonthlyTotal.Round(2).Equal(want) {
		t.Errorf("monthly total = %s, want 29.99", report.MonthlyTotal)
	}
	if sub.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5 for a perfectly regular group", sub.Confidence)
	}
}

func TestDetect_TooFewOccurrences(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	window := monthlyCharges("spotify", "9.99", 2, 5, now)

	report := Detect(window, now, DefaultOptions())

	if len(report.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0 for two occurrences", len(report.Subscriptions))
	}
	if !report.MonthlyTotal.IsZero() {
		t.Errorf("monthly total = %s, want 0", report.MonthlyTotal)
	}
}

func TestDetect_IrregularIntervalsDiscarded(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
	}
	var window []core.Transaction
	for _, d := range dates {
		window = append(window, core.Transaction{
			Amount:         decimal.RequireFromString("15.00"),
			Date:           d,
			RawDescription: "corner shop",
			MerchantKey:    "corner shop",
		})
	}

	report := Detect(window, now, DefaultOptions())
	if len(report.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0 for irregular intervals", len(report.Subscriptions))
	}
}

func TestDetect_AmountDrift(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	t.Run("small price change tolerated", func(t *testing.T) {
		window := monthlyCharges("gym", "30.00", 5, 1, now)
		// price bump on the last two charges, well within 15%
		window[3].Amount = decimal.RequireFromString("32.00")
		window[4].Amount = decimal.RequireFromString("32.00")

		report := Detect(window, now, DefaultOptions())
		if len(report.Subscriptions) != 1 {
			t.Fatalf("got %d subscriptions, want 1", len(report.Subscriptions))
		}
		// inferred amount follows the most recent charge
		if !report.Subscriptions[0].Amount.Equal(decimal.RequireFromString("32.00")) {
			t.Errorf("amount = %s, want 32.00", report.Subscriptions[0].Amount)
		}
	})

	t.Run("wild amounts discarded", func(t *testing.T) {
		window := monthlyCharges("grocer", "30.00", 5, 1, now)
		window[2].Amount = decimal.RequireFromString("95.00")

		report := Detect(window, now, DefaultOptions())
		if len(report.Subscriptions) != 0 {
			t.Fatalf("got %d subscriptions, want 0 for unstable amounts", len(report.Subscriptions))
		}
	})
}

func TestDetect_YearlyNormalization(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	var window []core.Transaction
	for _, year := range []int{2022, 2023, 2024} {
		window = append(window, core.Transaction{
			Amount:         decimal.NewFromInt(120),
			Date:           time.Date(year, 3, 10, 0, 0, 0, 0, time.UTC),
			RawDescription: "domain renewal",
			MerchantKey:    "registrar",
		})
	}

	report := Detect(window, now, DefaultOptions())
	if len(report.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(report.Subscriptions))
	}
	if report.Subscriptions[0].Cadence != core.Yearly {
		t.Errorf("cadence = %q, want yearly", report.Subscriptions[0].Cadence)
	}
	if !report.MonthlyTotal.Round(2).Equal(decimal.NewFromInt(10)) {
		t.Errorf("monthly total = %s, want 10 (120/year)", report.MonthlyTotal)
	}
}

func TestMonthlyTotal_RoundsOnlyAtBoundary(t *testing.T) {
	subs := []core.Subscription{
		{Amount: decimal.NewFromInt(100), Cadence: core.Yearly},
		{Amount: decimal.NewFromInt(100), Cadence: core.Yearly},
	}
	// 8.3333... + 8.3333... = 16.6666...; rounding each term first would
	// give 16.66 instead of 16.67.
	total := MonthlyTotal(subs)
	if got := core.FormatAmount(total); got != "16.67" {
		t.Errorf("formatted total = %s, want 16.67", got)
	}
}

func TestUpcoming_Horizon(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	horizon := 30 * 24 * time.Hour

	overdue := core.Subscription{
		MerchantName: "Netflix",
		Amount:       decimal.RequireFromString("29.99"),
		Cadence:      core.Monthly,
		Occurrences:  []time.Time{now.AddDate(0, 0, -35)},
	}
	nearTerm := core.Subscription{
		MerchantName: "Spotify",
		Amount:       decimal.RequireFromString("9.99"),
		Cadence:      core.Monthly,
		Occurrences:  []time.Time{now.AddDate(0, 0, -5)},
	}
	farOut := core.Subscription{
		MerchantName: "Registrar",
		Amount:       decimal.NewFromInt(120),
		Cadence:      core.Yearly,
		Occurrences:  []time.Time{now.AddDate(0, -2, 0)},
	}

	upcoming := Upcoming([]core.Subscription{overdue, nearTerm, farOut}, now, horizon)

	if len(upcoming) != 2 {
		t.Fatalf("got %d upcoming payments, want 2", len(upcoming))
	}
	// overdue projection (5 days in the past) sorts first
	if upcoming[0].MerchantName != "Netflix" {
		t.Errorf("first upcoming = %q, want Netflix", upcoming[0].MerchantName)
	}
	wantDate := now.AddDate(0, 0, -35).AddDate(0, 0, 30)
	if !upcoming[0].Date.Equal(wantDate) {
		t.Errorf("projected date = %v, want %v", upcoming[0].Date, wantDate)
	}
	// charged 5 days ago: next charge in 25 days, inside the horizon
	if upcoming[1].MerchantName != "Spotify" {
		t.Errorf("second upcoming = %q, want Spotify", upcoming[1].MerchantName)
	}
}

func TestDetect_SkipsIncomeAndIgnored(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	window := monthlyCharges("salary", "5000", 12, 28, now)
	for i := range window {
		window[i].IsIncome = true
	}
	ignored := monthlyCharges("transfer", "100", 12, 1, now)
	for i := range ignored {
		ignored[i].IsIgnored = true
	}
	window = append(window, ignored...)

	report := Detect(window, now, DefaultOptions())
	if len(report.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0 (income/ignored rows skipped)", len(report.Subscriptions))
	}
}

func TestInferCadence(t *testing.T) {
	tests := []struct {
		name      string
		intervals []int
		want      core.Cadence
		ok        bool
	}{
		{"calendar months", []int{31, 28, 31, 30, 31}, core.Monthly, true},
		{"weekly", []int{7, 7, 6, 8}, core.Weekly, true},
		{"quarterly", []int{90, 92, 91}, core.Quarterly, true},
		{"yearly", []int{365, 366}, core.Yearly, true},
		{"irregular", []int{14, 73, 130}, "", false},
		{"one wild interval", []int{30, 30, 90}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := inferCadence(tt.intervals)
			if ok != tt.ok || got != tt.want {
				t.Errorf("inferCadence(%v) = (%q, %v), want (%q, %v)", tt.intervals, got, ok, tt.want, tt.ok)
			}
		})
	}
}
