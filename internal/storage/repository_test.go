package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func expense(account, desc, amount string, date time.Time) core.Transaction {
	return core.Transaction{
		Amount:              decimal.RequireFromString(amount),
		Currency:            "EUR",
		Date:                date,
		RawDescription:      desc,
		CounterpartyAccount: account,
	}
}

func TestCategories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateCategory(ctx, core.Category{Name: "Groceries", Color: "#00aa00"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = repo.CreateCategory(ctx, core.Category{Name: "Other", AIPrompt: "fallback bucket"})
	require.NoError(t, err)

	cats, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	// ordered by name
	assert.Equal(t, "Groceries", cats[0].Name)
	assert.Equal(t, "Other", cats[1].Name)
	assert.Equal(t, "fallback bucket", cats[1].AIPrompt)

	got, err := repo.GetCategory(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = repo.GetCategory(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrCategoryNotFound))
}

func TestRuleUpsert_LastWriteWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.UpsertRule(ctx, "PL1234", "cat-a")
	require.NoError(t, err)
	assert.Equal(t, "cat-a", first.CategoryID)

	second, err := repo.UpsertRule(ctx, "PL1234", "cat-b")
	require.NoError(t, err)
	assert.Equal(t, "cat-b", second.CategoryID)

	got, err := repo.RuleByAccount(ctx, "PL1234")
	require.NoError(t, err)
	assert.Equal(t, "cat-b", got.CategoryID)

	_, err = repo.RuleByAccount(ctx, "PL9999")
	assert.True(t, errors.Is(err, core.ErrRuleNotFound))
}

func TestRecategorizeByAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := repo.InsertTransaction(ctx, expense("PL1234", "BIEDRONKA 11", "45.50", date.AddDate(0, 0, i)))
		require.NoError(t, err)
	}
	_, err := repo.InsertTransaction(ctx, expense("DE9999", "AMAZON", "12.00", date))
	require.NoError(t, err)

	count, err := repo.RecategorizeByAccount(ctx, "PL1234", "cat-groceries")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	txs, err := repo.ListTransactions(ctx, TransactionFilter{CategoryID: "cat-groceries"})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Equal(t, core.SourceRule, tx.CategorySource)
		assert.Equal(t, "PL1234", tx.CounterpartyAccount)
	}

	// idempotent: a re-run converges to the same state
	count, err = repo.RecategorizeByAccount(ctx, "PL1234", "cat-groceries")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestInsertTransaction_Normalizes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := expense("pl12 34", "NETFLIX.COM 456", "29.99", time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC))
	tx.CounterpartyName = "Netflix"
	stored, err := repo.InsertTransaction(ctx, tx)
	require.NoError(t, err)

	got, err := repo.GetTransaction(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "PL1234", got.CounterpartyAccount)
	assert.Equal(t, "netflix", got.MerchantKey)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("29.99")), "amount survives the round trip exactly")
}

func TestUncategorizedQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	older := expense("", "OLD PAYMENT", "5.00", date)
	newer := expense("", "NEW PAYMENT", "6.00", date.AddDate(0, 0, 10))
	categorized := expense("", "DONE", "7.00", date)
	categorized.CategoryID = "cat-x"
	categorized.CategorySource = core.SourceUser

	for _, tx := range []core.Transaction{newer, older, categorized} {
		_, err := repo.InsertTransaction(ctx, tx)
		require.NoError(t, err)
	}

	n, err := repo.CountUncategorized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	queue, err := repo.ListUncategorized(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "OLD PAYMENT", queue[0].RawDescription, "oldest first")
}

func TestApplyCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stored, err := repo.InsertTransaction(ctx, expense("", "SPOTIFY", "9.99", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	err = repo.ApplyCategory(ctx, stored.ID, "cat-streaming", core.SourceAI, "Spotify", "Spotify monthly")
	require.NoError(t, err)

	got, err := repo.GetTransaction(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat-streaming", got.CategoryID)
	assert.Equal(t, core.SourceAI, got.CategorySource)
	assert.Equal(t, "Spotify", got.DisplayName)

	err = repo.ApplyCategory(ctx, "missing-id", "cat-x", core.SourceUser, "", "")
	assert.Error(t, err)
}

func TestExpenseWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	inWindow := expense("", "NETFLIX", "29.99", now.AddDate(0, -1, 0))
	tooOld := expense("", "ANCIENT", "1.00", now.AddDate(-2, 0, 0))
	income := expense("", "SALARY", "5000", now.AddDate(0, -1, 0))
	income.IsIncome = true
	ignored := expense("", "INTERNAL TRANSFER", "100", now.AddDate(0, -1, 0))
	ignored.IsIgnored = true

	for _, tx := range []core.Transaction{inWindow, tooOld, income, ignored} {
		_, err := repo.InsertTransaction(ctx, tx)
		require.NoError(t, err)
	}

	window, err := repo.ExpenseWindow(ctx, now.AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "NETFLIX", window[0].RawDescription)
}

func TestClearTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := repo.InsertTransaction(ctx, expense("", "TX", "1.00", time.Date(2025, 6, 1+i, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
	}

	n, err := repo.ClearTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	left, err := repo.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestClassificationLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.RecordClassification(ctx, categorize.AuditEntry{
		Prompt:      "categorize NETFLIX",
		RawResponse: `{"category_id":"cat-streaming","confidence":0.9}`,
		CategoryID:  "cat-streaming",
		Confidence:  0.9,
		CreatedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	entries, err := repo.ListClassificationLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cat-streaming", entries[0].CategoryID)
	assert.Contains(t, entries[0].RawResponse, "confidence")
}
