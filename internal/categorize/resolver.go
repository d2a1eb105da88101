package categorize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/log"
)

const (
	// confidence assigned when the backend answered but named a category
	// outside the catalog
	invalidIDConfidence = 0.5
	// confidence assigned when the backend response could not be parsed
	unparsableConfidence = 0.3
)

// Resolver assigns a category to one transaction: an exact rule hit wins,
// otherwise the classifier decides against the category catalog.
type Resolver struct {
	rules      RuleStore
	catalog    CatalogSource
	classifier Classifier
	audit      AuditLog
	logger     *log.Logger
}

// NewResolver wires a resolver. audit may be nil when no trail is wanted.
func NewResolver(rules RuleStore, catalog CatalogSource, classifier Classifier, audit AuditLog, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentCategorize)
	}
	return &Resolver{
		rules:      rules,
		catalog:    catalog,
		classifier: classifier,
		audit:      audit,
		logger:     logger,
	}
}

// Resolve decides the category for one transaction.
//
// A present counterparty account is first checked against the learned rules;
// a hit short-circuits without any classifier call. On a miss, the full
// catalog is loaded and the classifier is consulted. The returned category
// id is always one from the catalog: responses naming an unknown id or that
// cannot be parsed are downgraded to the catch-all category.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Result, error) {
	if account := core.NormalizeAccount(in.CounterpartyAccount); account != "" {
		rule, err := r.rules.RuleByAccount(ctx, account)
		switch {
		case err == nil:
			res := Result{
				CategoryID:  rule.CategoryID,
				Source:      core.SourceRule,
				DisplayName: fallbackDisplayName(in),
				Description: fallbackDescription(in),
			}
			r.logger.DebugContext(ctx, "Rule hit",
				log.FieldAccount, account,
				log.FieldCategoryID, rule.CategoryID)
			return res, nil
		case errors.Is(err, core.ErrRuleNotFound):
			// fall through to the classifier
		default:
			return Result{}, fmt.Errorf("rule lookup: %w", err)
		}
	}

	catalog, err := r.catalog.Categories(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load categories: %w", err)
	}
	if len(catalog) == 0 {
		return Result{}, core.ErrNoCategories
	}

	prompt := BuildPrompt(in, catalog)
	raw, err := r.classifier.Classify(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	result := r.resolveAIResponse(in, catalog, raw)
	r.writeAudit(ctx, prompt, raw, result)
	return result, nil
}

// resolveAIResponse validates the backend's answer against the catalog and
// applies the downgrade policy.
func (r *Resolver) resolveAIResponse(in Input, catalog []core.Category, raw string) Result {
	resp, ok := parseResponse(raw)
	if !ok {
		fallback, _ := core.CatchAll(catalog)
		conf := unparsableConfidence
		return Result{
			CategoryID:  fallback.ID,
			Source:      core.SourceAI,
			DisplayName: fallbackDisplayName(in),
			Description: fallbackDescription(in),
			Confidence:  &conf,
		}
	}

	displayName := core.Truncate(resp.DisplayName, core.MaxDisplayNameLen)
	if displayName == "" {
		displayName = fallbackDisplayName(in)
	}
	description := core.Truncate(resp.Description, core.MaxDescriptionLen)
	if description == "" {
		description = fallbackDescription(in)
	}

	if !catalogContains(catalog, resp.CategoryID) {
		fallback, _ := core.CatchAll(catalog)
		conf := invalidIDConfidence
		return Result{
			CategoryID:  fallback.ID,
			Source:      core.SourceAI,
			DisplayName: displayName,
			Description: description,
			Confidence:  &conf,
		}
	}

	conf := resp.Confidence
	return Result{
		CategoryID:  resp.CategoryID,
		Source:      core.SourceAI,
		DisplayName: displayName,
		Description: description,
		Confidence:  &conf,
	}
}

// writeAudit records the AI-path call. Audit failures are logged and
// swallowed: they must never fail a categorization that already succeeded.
func (r *Resolver) writeAudit(ctx context.Context, prompt, raw string, result Result) {
	if r.audit == nil {
		return
	}
	conf := 0.0
	if result.Confidence != nil {
		conf = *result.Confidence
	}
	entry := AuditEntry{
		Prompt:      prompt,
		RawResponse: raw,
		CategoryID:  result.CategoryID,
		Confidence:  conf,
		CreatedAt:   time.Now(),
	}
	if err := r.audit.RecordClassification(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "Audit write failed",
			log.FieldError, err,
			log.FieldCategoryID, result.CategoryID)
	}
}

func catalogContains(catalog []core.Category, id string) bool {
	for _, c := range catalog {
		if c.ID == id {
			return true
		}
	}
	return false
}

// fallbackDisplayName derives a display name when the backend offers none:
// the counterparty name, else the first 50 characters of the description.
func fallbackDisplayName(in Input) string {
	if in.CounterpartyName != "" {
		return core.Truncate(in.CounterpartyName, core.MaxDisplayNameLen)
	}
	return core.Truncate(in.RawDescription, core.MaxDisplayNameLen)
}

func fallbackDescription(in Input) string {
	return core.Truncate(in.RawDescription, core.MaxDescriptionLen)
}
