// Package categorize implements the categorization resolver: a learned-rule
// lookup with an LLM classification fallback. The resolver always produces a
// category from the supplied catalog, downgrading to the catch-all entry
// when the backend misbehaves.
package categorize

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbialon/budgie/internal/core"
)

// Input describes one transaction to categorize.
type Input struct {
	RawDescription      string
	Amount              decimal.Decimal
	Currency            string
	Date                time.Time
	CounterpartyName    string
	CounterpartyAccount string
	IsIncome            bool
}

// Result is the resolver's decision for one transaction. Confidence is nil
// on the rule path: rule hits are deterministic.
type Result struct {
	CategoryID  string
	Source      core.CategorySource
	DisplayName string
	Description string
	Confidence  *float64
}

// Classifier is a text-in/text-out classification backend. The concrete
// implementation is a hosted LLM, but the resolver only relies on getting
// raw response text back for a prompt.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// RuleStore looks up learned categorization rules by normalized counterparty
// account. A miss is reported as core.ErrRuleNotFound.
type RuleStore interface {
	RuleByAccount(ctx context.Context, account string) (core.Rule, error)
}

// CatalogSource supplies the category catalog the classifier may choose
// from. Implementations may cache; the resolver treats it as read-only.
type CatalogSource interface {
	Categories(ctx context.Context) ([]core.Category, error)
}

// AuditEntry is one row of the AI-path audit trail.
type AuditEntry struct {
	Prompt      string
	RawResponse string
	CategoryID  string
	Confidence  float64
	CreatedAt   time.Time
}

// AuditLog records AI-path classifications for later inspection. Writes must
// never fail or block the categorization result; the resolver swallows
// errors from here.
type AuditLog interface {
	RecordClassification(ctx context.Context, entry AuditEntry) error
}
