// Package subscription detects recurring-payment groups in a transaction
// window and projects upcoming charges. Detection is a pure function of the
// supplied window and clock; nothing is persisted between runs.
package subscription

import (
	"sort"
	"time"

	"github.com/pbialon/budgie/internal/core"
)

// cadenceSpec pairs a cadence with the interval band (in days) that
// qualifies a sequence of charges for it. Calendar months are 28-31 days
// long, so each band allows slack around the nominal interval.
type cadenceSpec struct {
	cadence   core.Cadence
	nominal   int
	tolerance int
}

// cadenceSpecs is ordered from shortest to longest interval; inference picks
// the first band the median interval falls into.
var cadenceSpecs = []cadenceSpec{
	{cadence: core.Weekly, nominal: 7, tolerance: 2},
	{cadence: core.Monthly, nominal: 30, tolerance: 5},
	{cadence: core.Quarterly, nominal: 91, tolerance: 10},
	{cadence: core.Yearly, nominal: 365, tolerance: 20},
}

// intervalsOf returns the day gaps between consecutive occurrence dates.
// Dates must be sorted ascending.
func intervalsOf(dates []time.Time) []int {
	if len(dates) < 2 {
		return nil
	}
	out := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		days := int(dates[i].Sub(dates[i-1]).Hours() / 24)
		out = append(out, days)
	}
	return out
}

func medianInt(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// inferCadence decides whether a sequence of occurrence intervals is
// periodic, and at which cadence. The median interval selects the candidate
// band; every individual interval must then stay inside the band, otherwise
// the sequence is too irregular to call a subscription.
func inferCadence(intervals []int) (core.Cadence, bool) {
	if len(intervals) == 0 {
		return "", false
	}
	median := medianInt(intervals)

	for _, spec := range cadenceSpecs {
		if abs(median-spec.nominal) > spec.tolerance {
			continue
		}
		for _, iv := range intervals {
			if abs(iv-spec.nominal) > spec.tolerance {
				return "", false
			}
		}
		return spec.cadence, true
	}
	return "", false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
