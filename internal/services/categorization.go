// Package services composes storage, the categorization resolver and the
// subscription detector into the operations the HTTP layer and the workers
// call.
package services

import (
	"context"
	"fmt"

	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/log"
)

// Store is the storage surface the categorization operations need. The
// SQLite repository satisfies it.
type Store interface {
	InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ApplyCategory(ctx context.Context, id, categoryID string, source core.CategorySource, displayName, description string) error
	GetCategory(ctx context.Context, id string) (core.Category, error)
	UpsertRule(ctx context.Context, account, categoryID string) (core.Rule, error)
	RecategorizeByAccount(ctx context.Context, account, categoryID string) (int64, error)
	ListUncategorized(ctx context.Context, limit int) ([]core.Transaction, error)
	CountUncategorized(ctx context.Context) (int, error)
}

// Resolver decides the category for one transaction.
type Resolver interface {
	Resolve(ctx context.Context, in categorize.Input) (categorize.Result, error)
}

type CategorizationService struct {
	store    Store
	resolver Resolver
	logger   *log.Logger
}

func NewCategorizationService(store Store, resolver Resolver, logger *log.Logger) *CategorizationService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentCategorize)
	}
	return &CategorizationService{store: store, resolver: resolver, logger: logger}
}

// CreateTransaction validates and persists one transaction, categorizing it
// on the way in. When the resolver fails the transaction is stored
// uncategorized so the batch worker can pick it up later; creation itself
// does not fail on a classifier outage.
func (s *CategorizationService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	res, err := s.resolver.Resolve(ctx, inputFrom(tx))
	if err != nil {
		s.logger.WarnContext(ctx, "Categorization failed, storing uncategorized",
			log.FieldError, err,
			log.FieldAccount, core.NormalizeAccount(tx.CounterpartyAccount))
		tx.CategoryID = ""
		tx.CategorySource = ""
	} else {
		applyResult(&tx, res)
	}

	return s.store.InsertTransaction(ctx, tx)
}

// CategorizeTransaction re-runs the resolver for a stored transaction and
// persists the outcome.
func (s *CategorizationService) CategorizeTransaction(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	res, err := s.resolver.Resolve(ctx, inputFrom(tx))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("categorize %s: %w", id, err)
	}

	applyResult(&tx, res)
	if err := s.store.ApplyCategory(ctx, tx.ID, tx.CategoryID, tx.CategorySource, tx.DisplayName, tx.Description); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction categorized",
		log.FieldTransactionID, tx.ID,
		log.FieldCategoryID, tx.CategoryID,
		log.FieldSource, string(tx.CategorySource))
	return tx, nil
}

// Promotion is the outcome of promoting an assignment to a rule.
type Promotion struct {
	Rule core.Rule
	// Recategorized counts the historical transactions moved to the rule's
	// category.
	Recategorized int64
}

// PromoteRule persists an account-to-category rule and recategorizes every
// stored transaction with that counterparty account. The two writes are not
// atomic: if the bulk update fails after the rule write, re-running the
// promotion converges because both steps are idempotent.
func (s *CategorizationService) PromoteRule(ctx context.Context, account, categoryID string) (Promotion, error) {
	account = core.NormalizeAccount(account)
	if account == "" {
		return Promotion{}, core.ErrEmptyAccount
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return Promotion{}, err
	}

	rule, err := s.store.UpsertRule(ctx, account, categoryID)
	if err != nil {
		return Promotion{}, fmt.Errorf("promote rule: %w", err)
	}

	n, err := s.store.RecategorizeByAccount(ctx, account, categoryID)
	if err != nil {
		return Promotion{Rule: rule}, fmt.Errorf("recategorize after promotion: %w", err)
	}

	s.logger.InfoContext(ctx, "Rule promoted",
		log.FieldOperation, log.OpPromote,
		log.FieldAccount, account,
		log.FieldCategoryID, categoryID,
		"recategorized", n)
	return Promotion{Rule: rule, Recategorized: n}, nil
}

func inputFrom(tx core.Transaction) categorize.Input {
	return categorize.Input{
		RawDescription:      tx.RawDescription,
		Amount:              tx.Amount,
		Currency:            tx.Currency,
		Date:                tx.Date,
		CounterpartyName:    tx.CounterpartyName,
		CounterpartyAccount: tx.CounterpartyAccount,
		IsIncome:            tx.IsIncome,
	}
}

func applyResult(tx *core.Transaction, res categorize.Result) {
	tx.CategoryID = res.CategoryID
	tx.CategorySource = res.Source
	tx.DisplayName = res.DisplayName
	tx.Description = res.Description
}
