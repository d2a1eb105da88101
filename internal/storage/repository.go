// Package storage persists the domain over SQLite: categories, learned
// categorization rules, transactions and the AI classification audit trail.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/core"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

//
// Categories
//

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, color, ai_prompt, is_savings, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Color, c.AIPrompt, boolToInt(c.IsSavings), time.Now().UTC())
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, color, ai_prompt, is_savings
		FROM categories
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var savings int
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.AIPrompt, &savings); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.IsSavings = savings != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	var savings int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, color, ai_prompt, is_savings
		FROM categories
		WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Color, &c.AIPrompt, &savings)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.IsSavings = savings != 0
	return c, nil
}

//
// Categorization rules
//

// RuleByAccount returns the rule for a normalized counterparty account, or
// core.ErrRuleNotFound.
func (r *SQLiteRepository) RuleByAccount(ctx context.Context, account string) (core.Rule, error) {
	var rule core.Rule
	err := r.db.QueryRowContext(ctx, `
		SELECT id, counterparty_account, category_id, created_at
		FROM categorization_rules
		WHERE counterparty_account = ?`, account).
		Scan(&rule.ID, &rule.CounterpartyAccount, &rule.CategoryID, &rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Rule{}, core.ErrRuleNotFound
	}
	if err != nil {
		return core.Rule{}, fmt.Errorf("rule by account: %w", err)
	}
	return rule, nil
}

// UpsertRule stores the account-to-category mapping, last write wins. The
// unique constraint on counterparty_account keeps at most one rule per
// account.
func (r *SQLiteRepository) UpsertRule(ctx context.Context, account, categoryID string) (core.Rule, error) {
	rule := core.Rule{
		ID:                  uuid.NewString(),
		CounterpartyAccount: account,
		CategoryID:          categoryID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := rule.Validate(); err != nil {
		return core.Rule{}, err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categorization_rules (id, counterparty_account, category_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(counterparty_account) DO UPDATE SET category_id = excluded.category_id`,
		rule.ID, rule.CounterpartyAccount, rule.CategoryID, rule.CreatedAt)
	if err != nil {
		return core.Rule{}, fmt.Errorf("upsert rule: %w", err)
	}
	return r.RuleByAccount(ctx, account)
}

//
// Transactions
//

const transactionColumns = `id, amount, currency, date, raw_description, display_name,
	description, counterparty_name, counterparty_account, merchant_key,
	category_id, category_source, is_income, is_ignored, created_at`

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.MerchantKey == "" {
		tx.MerchantKey = core.DeriveMerchantKey(tx.CounterpartyName, tx.RawDescription)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Amount.String(), tx.Currency, tx.Date.UTC(), tx.RawDescription,
		tx.DisplayName, tx.Description, tx.CounterpartyName,
		core.NormalizeAccount(tx.CounterpartyAccount), tx.MerchantKey,
		tx.CategoryID, string(tx.CategorySource),
		boolToInt(tx.IsIncome), boolToInt(tx.IsIgnored), tx.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: not found", id)
	}
	return tx, err
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	From       time.Time
	To         time.Time
	CategoryID string
	Limit      int
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	if !f.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND date < ?`
		args = append(args, f.To.UTC())
	}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	query += ` ORDER BY date DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return r.queryTransactions(ctx, query, args...)
}

// ExpenseWindow returns non-income, non-ignored transactions since the given
// time, newest first. This is the subscription detector's input.
func (r *SQLiteRepository) ExpenseWindow(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_income = 0 AND is_ignored = 0 AND date >= ?
		ORDER BY date DESC`, since.UTC())
}

// ListUncategorized returns transactions without a category, oldest first so
// batches drain the backlog in order.
func (r *SQLiteRepository) ListUncategorized(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE category_id = ''
		ORDER BY date ASC
		LIMIT ?`, limit)
}

func (r *SQLiteRepository) CountUncategorized(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = ''`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uncategorized: %w", err)
	}
	return n, nil
}

// ApplyCategory attaches or replaces a transaction's category assignment.
func (r *SQLiteRepository) ApplyCategory(ctx context.Context, id, categoryID string, source core.CategorySource, displayName, description string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, category_source = ?, display_name = ?, description = ?
		WHERE id = ?`,
		categoryID, string(source), displayName, description, id)
	if err != nil {
		return fmt.Errorf("apply category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: not found", id)
	}
	return nil
}

// RecategorizeByAccount bulk-updates every transaction sharing a normalized
// counterparty account to the given category with source "rule". It is
// idempotent: re-running after a partial failure converges to the same
// state. Returns the number of rows updated.
func (r *SQLiteRepository) RecategorizeByAccount(ctx context.Context, account, categoryID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, category_source = ?
		WHERE counterparty_account = ?`,
		categoryID, string(core.SourceRule), account)
	if err != nil {
		return 0, fmt.Errorf("recategorize by account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recategorize by account: rows affected: %w", err)
	}
	return n, nil
}

// ClearTransactions deletes every transaction. The only way rows leave the
// table.
func (r *SQLiteRepository) ClearTransactions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear transactions: rows affected: %w", err)
	}
	return n, nil
}

//
// AI classification audit trail
//

// RecordClassification appends one row to ai_categorization_log. Implements
// categorize.AuditLog.
func (r *SQLiteRepository) RecordClassification(ctx context.Context, entry categorize.AuditEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_categorization_log (id, prompt, raw_response, category_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entry.Prompt, entry.RawResponse, entry.CategoryID, entry.Confidence, createdAt)
	if err != nil {
		return fmt.Errorf("record classification: %w", err)
	}
	return nil
}

// ListClassificationLog returns the newest audit entries up to limit.
func (r *SQLiteRepository) ListClassificationLog(ctx context.Context, limit int) ([]categorize.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT prompt, raw_response, category_id, confidence, created_at
		FROM ai_categorization_log
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list classification log: %w", err)
	}
	defer rows.Close()

	var out []categorize.AuditEntry
	for rows.Next() {
		var e categorize.AuditEntry
		if err := rows.Scan(&e.Prompt, &e.RawResponse, &e.CategoryID, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan classification log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

//
// helpers
//

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var amount, source string
	var income, ignored int
	err := row.Scan(&tx.ID, &amount, &tx.Currency, &tx.Date, &tx.RawDescription,
		&tx.DisplayName, &tx.Description, &tx.CounterpartyName,
		&tx.CounterpartyAccount, &tx.MerchantKey,
		&tx.CategoryID, &source, &income, &ignored, &tx.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	tx.CategorySource = core.CategorySource(source)
	tx.IsIncome = income != 0
	tx.IsIgnored = ignored != 0
	return tx, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
