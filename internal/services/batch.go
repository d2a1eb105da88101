package services

import (
	"context"

	"github.com/pbialon/budgie/internal/log"
)

// BatchResult summarizes one batch categorization run.
type BatchResult struct {
	Categorized int
	Errors      int
	// Remaining is the uncategorized count measured after the run. New rows
	// may arrive while the batch runs, so it is a fresh count, not
	// arithmetic on the batch size.
	Remaining int
	HasMore   bool
}

// BatchProcessor drains the uncategorized backlog in bounded batches,
// oldest first.
type BatchProcessor struct {
	store    Store
	resolver Resolver
	size     int
	logger   *log.Logger
}

func NewBatchProcessor(store Store, resolver Resolver, size int, logger *log.Logger) *BatchProcessor {
	if size < 1 {
		size = 25
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentCategorize)
	}
	return &BatchProcessor{store: store, resolver: resolver, size: size, logger: logger}
}

// Run categorizes up to one batch of uncategorized transactions. A failure
// on one transaction is counted and logged but does not abort the batch;
// the failed row stays uncategorized and is retried on a later run.
func (p *BatchProcessor) Run(ctx context.Context) (BatchResult, error) {
	pending, err := p.store.ListUncategorized(ctx, p.size)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := p.resolver.Resolve(ctx, inputFrom(tx))
		if err != nil {
			result.Errors++
			p.logger.WarnContext(ctx, "Batch item failed",
				log.FieldTransactionID, tx.ID,
				log.FieldError, err)
			continue
		}
		if err := p.store.ApplyCategory(ctx, tx.ID, res.CategoryID, res.Source, res.DisplayName, res.Description); err != nil {
			result.Errors++
			p.logger.WarnContext(ctx, "Batch item failed",
				log.FieldTransactionID, tx.ID,
				log.FieldError, err)
			continue
		}
		result.Categorized++
	}

	remaining, err := p.store.CountUncategorized(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining
	result.HasMore = remaining > 0

	p.logger.InfoContext(ctx, "Batch run finished",
		log.FieldOperation, log.OpCategorize,
		log.FieldBatchSize, len(pending),
		log.FieldCategorized, result.Categorized,
		log.FieldErrors, result.Errors,
		log.FieldRemaining, result.Remaining)
	return result, nil
}
