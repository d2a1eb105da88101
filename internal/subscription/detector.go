package subscription

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbialon/budgie/internal/core"
)

// Options tunes the detection thresholds.
type Options struct {
	// MinOccurrences is the smallest number of charges a merchant group
	// needs before it can qualify as a subscription.
	MinOccurrences int
	// Horizon bounds the upcoming-payment projection from "now".
	Horizon time.Duration
	// AmountTolerance is the maximum relative deviation of any occurrence
	// amount from the group median (0.15 = 15%), allowing small price drift.
	AmountTolerance float64
}

// DefaultOptions matches the production tuning.
func DefaultOptions() Options {
	return Options{
		MinOccurrences:  3,
		Horizon:         30 * 24 * time.Hour,
		AmountTolerance: 0.15,
	}
}

// Report is the outcome of one detection run.
type Report struct {
	Subscriptions []core.Subscription
	// MonthlyTotal is the sum of every subscription's cadence-normalized
	// monthly amount. It is kept unrounded here; callers round once at
	// the output boundary.
	MonthlyTotal decimal.Decimal
	Upcoming     []core.UpcomingPayment
}

// Detect scans an expense window for recurring-payment groups. The window is
// expected to hold only expense transactions (is_income and is_ignored rows
// are skipped defensively); ordering does not matter. "now" anchors the
// upcoming-payment projection.
func Detect(window []core.Transaction, now time.Time, opts Options) Report {
	if opts.MinOccurrences < 2 {
		opts.MinOccurrences = DefaultOptions().MinOccurrences
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultOptions().Horizon
	}
	if opts.AmountTolerance <= 0 {
		opts.AmountTolerance = DefaultOptions().AmountTolerance
	}

	groups := groupByMerchant(window)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var subs []core.Subscription
	for _, key := range keys {
		if sub, ok := analyzeGroup(key, groups[key], opts); ok {
			subs = append(subs, sub)
		}
	}

	// Most expensive first makes the report stable and readable.
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].MonthlyAmount().GreaterThan(subs[j].MonthlyAmount())
	})

	return Report{
		Subscriptions: subs,
		MonthlyTotal:  MonthlyTotal(subs),
		Upcoming:      Upcoming(subs, now, opts.Horizon),
	}
}

// MonthlyTotal sums each subscription's cadence-normalized monthly amount
// without rounding.
func MonthlyTotal(subs []core.Subscription) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subs {
		total = total.Add(s.MonthlyAmount())
	}
	return total
}

// Upcoming projects the next expected charge of each subscription and keeps
// those falling within the horizon from now. Overdue charges (projected date
// already in the past) are included: they are at most one interval away.
func Upcoming(subs []core.Subscription, now time.Time, horizon time.Duration) []core.UpcomingPayment {
	var out []core.UpcomingPayment
	for _, s := range subs {
		next := s.NextDate()
		if next.IsZero() {
			continue
		}
		if next.Sub(now) > horizon {
			continue
		}
		out = append(out, core.UpcomingPayment{
			Date:         next,
			MerchantName: s.MerchantName,
			Amount:       s.Amount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func groupByMerchant(window []core.Transaction) map[string][]core.Transaction {
	groups := make(map[string][]core.Transaction)
	for _, tx := range window {
		if tx.IsIncome || tx.IsIgnored {
			continue
		}
		key := tx.MerchantKey
		if key == "" {
			key = core.DeriveMerchantKey(tx.CounterpartyName, tx.RawDescription)
		}
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tx)
	}
	return groups
}

// analyzeGroup decides whether one merchant's charges form a subscription.
// Groups below the occurrence threshold, with irregular intervals, or with
// unstable amounts are discarded silently.
func analyzeGroup(key string, txs []core.Transaction, opts Options) (core.Subscription, bool) {
	if len(txs) < opts.MinOccurrences {
		return core.Subscription{}, false
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })

	dates := make([]time.Time, len(txs))
	for i, tx := range txs {
		dates[i] = tx.Date
	}

	intervals := intervalsOf(dates)
	cadence, ok := inferCadence(intervals)
	if !ok {
		return core.Subscription{}, false
	}

	amounts := make([]decimal.Decimal, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	maxDev, ok := amountSpread(amounts)
	if !ok || maxDev > opts.AmountTolerance {
		return core.Subscription{}, false
	}

	latest := txs[len(txs)-1]
	name := latest.CounterpartyName
	if name == "" {
		name = latest.DisplayName
	}
	if name == "" {
		name = core.Truncate(latest.RawDescription, core.MaxDisplayNameLen)
	}

	return core.Subscription{
		MerchantKey:  key,
		MerchantName: name,
		Amount:       latest.Amount,
		Cadence:      cadence,
		Confidence:   confidence(intervals, cadence, maxDev, opts, len(txs)),
		Occurrences:  dates,
	}, true
}

// amountSpread returns the largest relative deviation of any amount from the
// group median. ok is false when the median is zero.
func amountSpread(amounts []decimal.Decimal) (float64, bool) {
	median := medianAmount(amounts)
	if median.IsZero() {
		return 0, false
	}
	maxDev := 0.0
	for _, a := range amounts {
		dev, _ := a.Sub(median).Abs().Div(median).Float64()
		if dev > maxDev {
			maxDev = dev
		}
	}
	return maxDev, true
}

func medianAmount(amounts []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), amounts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	}
	return sorted[mid]
}

// confidence scores how regular a group looks. A longer history raises it,
// interval jitter and amount drift lower it.
func confidence(intervals []int, cadence core.Cadence, amountDev float64, opts Options, occurrences int) float64 {
	nominal := cadence.IntervalDays()
	var spec cadenceSpec
	for _, s := range cadenceSpecs {
		if s.cadence == cadence {
			spec = s
			break
		}
	}

	jitter := 0.0
	for _, iv := range intervals {
		jitter += float64(abs(iv - nominal))
	}
	jitter /= float64(len(intervals))

	score := 0.6
	score += 0.05 * float64(min(occurrences-opts.MinOccurrences, 6))
	if spec.tolerance > 0 {
		score -= 0.2 * (jitter / float64(spec.tolerance))
	}
	score -= 0.2 * (amountDev / opts.AmountTolerance)

	if score < 0.1 {
		score = 0.1
	}
	if score > 0.99 {
		score = 0.99
	}
	return score
}
