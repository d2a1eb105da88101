// Package core defines the domain model shared by every layer: transactions,
// categories, learned categorization rules and detected subscriptions.
//
// This file contains amount parsing helpers. Amounts travel through the
// system as shopspring decimals; float64 is never used for money math.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user- or bank-supplied amount string to a positive
// decimal. It accepts both dot (12.34) and comma (12,34) separators and an
// optional leading sign; the sign is discarded because direction is carried
// by the is_income flag.
//
// Examples:
//
//	ParseAmount("29.99")  -> 29.99
//	ParseAmount("29,99")  -> 29.99
//	ParseAmount("-29.99") -> 29.99
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Abs()
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two decimal places for
// external exposure. Rounding happens here and nowhere earlier.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
