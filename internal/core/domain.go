package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceRule CategorySource = "rule"
	SourceAI   CategorySource = "ai"
	SourceUser CategorySource = "user"
)

const (
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Yearly    Cadence = "yearly"
)

// CatchAllCategoryName is the conventional name of the fallback category used
// when classification fails or returns an unknown id.
const CatchAllCategoryName = "Other"

const (
	// MaxDisplayNameLen caps display names derived from raw descriptions.
	MaxDisplayNameLen = 50
	// MaxDescriptionLen caps normalized descriptions derived from raw text.
	MaxDescriptionLen = 200
)

type (
	// CategorySource records how a transaction got its category.
	CategorySource string

	// Cadence is the recurrence interval of a detected subscription.
	Cadence string

	// Transaction is one bank movement. Amount is always positive; the
	// direction comes from IsIncome (signed amounts on imported rows are
	// normalized at the boundary).
	Transaction struct {
		ID                  string
		Amount              decimal.Decimal
		Currency            string
		Date                time.Time
		RawDescription      string
		DisplayName         string
		Description         string
		CounterpartyName    string
		CounterpartyAccount string
		MerchantKey         string
		CategoryID          string
		CategorySource      CategorySource
		IsIncome            bool
		IsIgnored           bool
		CreatedAt           time.Time
	}

	// Category is one user-managed spending category. AIPrompt is an optional
	// free-text hint passed to the classifier.
	Category struct {
		ID        string
		Name      string
		Color     string
		AIPrompt  string
		IsSavings bool
	}

	// Rule is a learned mapping from a normalized counterparty account to a
	// category. At most one rule exists per account.
	Rule struct {
		ID                  string
		CounterpartyAccount string
		CategoryID          string
		CreatedAt           time.Time
	}

	// Subscription is a recurring-payment group derived from the transaction
	// history. It is recomputed on every detection run and never persisted.
	Subscription struct {
		MerchantKey  string
		MerchantName string
		Amount       decimal.Decimal // most recent occurrence amount
		Cadence      Cadence
		Confidence   float64
		Occurrences  []time.Time // ascending
	}

	// UpcomingPayment is one projected future charge.
	UpcomingPayment struct {
		Date         time.Time
		MerchantName string
		Amount       decimal.Decimal
	}
)

var (
	ErrNoCategories     = errors.New("no categories configured")
	ErrCategoryNotFound = errors.New("category not found")
	ErrRuleNotFound     = errors.New("categorization rule not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyAccount     = errors.New("empty counterparty account")
)

// Valid reports whether the source is one of the known values.
func (s CategorySource) Valid() bool {
	switch s {
	case SourceRule, SourceAI, SourceUser:
		return true
	}
	return false
}

// IntervalDays returns the nominal number of days between occurrences.
func (c Cadence) IntervalDays() int {
	switch c {
	case Weekly:
		return 7
	case Monthly:
		return 30
	case Quarterly:
		return 91
	case Yearly:
		return 365
	default:
		return 0
	}
}

// MonthlyFactor converts one occurrence amount to a monthly-equivalent
// figure. A yearly subscription of 120 contributes 10 per month.
func (c Cadence) MonthlyFactor() decimal.Decimal {
	switch c {
	case Weekly:
		return decimal.NewFromInt(52).Div(decimal.NewFromInt(12))
	case Monthly:
		return decimal.NewFromInt(1)
	case Quarterly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	case Yearly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(12))
	default:
		return decimal.Zero
	}
}

// MonthlyAmount is the subscription's cost normalized to a monthly cadence.
// The result is not rounded; rounding happens once at the output boundary.
func (s Subscription) MonthlyAmount() decimal.Decimal {
	return s.Amount.Mul(s.Cadence.MonthlyFactor())
}

// LastOccurrence returns the most recent occurrence date, or the zero time
// when the subscription has no occurrences.
func (s Subscription) LastOccurrence() time.Time {
	if len(s.Occurrences) == 0 {
		return time.Time{}
	}
	return s.Occurrences[len(s.Occurrences)-1]
}

// NextDate extrapolates the next expected charge from the last occurrence.
func (s Subscription) NextDate() time.Time {
	last := s.LastOccurrence()
	if last.IsZero() {
		return time.Time{}
	}
	return last.AddDate(0, 0, s.Cadence.IntervalDays())
}

// NormalizeAccount canonicalizes a counterparty account identifier so rule
// lookups are exact-match: uppercase with all whitespace stripped.
func NormalizeAccount(account string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(account) {
		if r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate cuts s to at most max runes and trims surrounding whitespace.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		s = string(runes[:max])
	}
	return strings.TrimSpace(s)
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.RawDescription)) == 0 {
		return ErrEmptyDescription
	}
	if t.CategorySource != "" && !t.CategorySource.Valid() {
		return errors.New("invalid category source")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("empty category name")
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.CounterpartyAccount) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrCategoryNotFound
	}
	return nil
}

// IsCatchAll reports whether the category is the conventional fallback.
func (c Category) IsCatchAll() bool {
	return strings.EqualFold(c.Name, CatchAllCategoryName)
}

// CatchAll picks the fallback category from a catalog: the category named
// "Other" when present, otherwise the first entry. ok is false for an empty
// catalog.
func CatchAll(catalog []Category) (Category, bool) {
	if len(catalog) == 0 {
		return Category{}, false
	}
	for _, c := range catalog {
		if c.IsCatchAll() {
			return c, true
		}
	}
	return catalog[0], true
}
