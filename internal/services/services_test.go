package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbialon/budgie/internal/categorize"
	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/subscription"
)

type fakeStore struct {
	transactions  map[string]core.Transaction
	categories    map[string]core.Category
	rules         map[string]core.Rule
	uncategorized []core.Transaction
	remaining     int

	recategorized int64
	applyErrFor   map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: make(map[string]core.Transaction),
		categories:   make(map[string]core.Category),
		rules:        make(map[string]core.Rule),
		applyErrFor:  make(map[string]error),
	}
}

func (s *fakeStore) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = "tx-generated"
	}
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *fakeStore) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, errors.New("transaction not found")
	}
	return tx, nil
}

func (s *fakeStore) ApplyCategory(_ context.Context, id, categoryID string, source core.CategorySource, displayName, description string) error {
	if err := s.applyErrFor[id]; err != nil {
		return err
	}
	tx, ok := s.transactions[id]
	if !ok {
		return errors.New("transaction not found")
	}
	tx.CategoryID = categoryID
	tx.CategorySource = source
	tx.DisplayName = displayName
	tx.Description = description
	s.transactions[id] = tx
	return nil
}

func (s *fakeStore) GetCategory(_ context.Context, id string) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.ErrCategoryNotFound
	}
	return c, nil
}

func (s *fakeStore) UpsertRule(_ context.Context, account, categoryID string) (core.Rule, error) {
	rule := core.Rule{ID: "rule-" + account, CounterpartyAccount: account, CategoryID: categoryID}
	s.rules[account] = rule
	return rule, nil
}

func (s *fakeStore) RecategorizeByAccount(context.Context, string, string) (int64, error) {
	return s.recategorized, nil
}

func (s *fakeStore) ListUncategorized(_ context.Context, limit int) ([]core.Transaction, error) {
	if len(s.uncategorized) > limit {
		return s.uncategorized[:limit], nil
	}
	return s.uncategorized, nil
}

func (s *fakeStore) CountUncategorized(context.Context) (int, error) {
	return s.remaining, nil
}

type fakeResolver struct {
	result categorize.Result
	err    error
	errFor map[string]error // keyed by raw description
	calls  int
}

func (r *fakeResolver) Resolve(_ context.Context, in categorize.Input) (categorize.Result, error) {
	r.calls++
	if err := r.errFor[in.RawDescription]; err != nil {
		return categorize.Result{}, err
	}
	if r.err != nil {
		return categorize.Result{}, r.err
	}
	return r.result, nil
}

func sampleTransaction() core.Transaction {
	return core.Transaction{
		Amount:              decimal.RequireFromString("29.99"),
		Currency:            "EUR",
		Date:                time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		RawDescription:      "NETFLIX.COM 29.99",
		CounterpartyName:    "Netflix",
		CounterpartyAccount: "NL01NETF0000000001",
	}
}

func TestCreateTransaction_CategorizesOnTheWayIn(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{result: categorize.Result{
		CategoryID:  "cat-streaming",
		Source:      core.SourceAI,
		DisplayName: "Netflix",
		Description: "Streaming subscription",
	}}
	svc := NewCategorizationService(store, resolver, nil)

	tx, err := svc.CreateTransaction(context.Background(), sampleTransaction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.CategoryID != "cat-streaming" || tx.CategorySource != core.SourceAI {
		t.Errorf("got category %q source %q, want cat-streaming/ai", tx.CategoryID, tx.CategorySource)
	}
	stored := store.transactions[tx.ID]
	if stored.CategoryID != "cat-streaming" {
		t.Errorf("stored category = %q, want cat-streaming", stored.CategoryID)
	}
}

func TestCreateTransaction_InvalidInputRejected(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{}
	svc := NewCategorizationService(store, resolver, nil)

	tx := sampleTransaction()
	tx.Amount = decimal.Zero
	if _, err := svc.CreateTransaction(context.Background(), tx); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for invalid input, want 0", resolver.calls)
	}
	if len(store.transactions) != 0 {
		t.Errorf("invalid transaction was persisted")
	}
}

func TestCreateTransaction_ResolverFailureStoresUncategorized(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{err: errors.New("backend down")}
	svc := NewCategorizationService(store, resolver, nil)

	tx, err := svc.CreateTransaction(context.Background(), sampleTransaction())
	if err != nil {
		t.Fatalf("creation must survive a resolver outage, got %v", err)
	}
	if tx.CategoryID != "" || tx.CategorySource != "" {
		t.Errorf("got category %q source %q, want uncategorized", tx.CategoryID, tx.CategorySource)
	}
}

func TestCategorizeTransaction_PersistsOutcome(t *testing.T) {
	store := newFakeStore()
	seed, _ := store.InsertTransaction(context.Background(), sampleTransaction())
	resolver := &fakeResolver{result: categorize.Result{
		CategoryID: "cat-streaming",
		Source:     core.SourceRule,
	}}
	svc := NewCategorizationService(store, resolver, nil)

	tx, err := svc.CategorizeTransaction(context.Background(), seed.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.CategoryID != "cat-streaming" {
		t.Errorf("CategoryID = %q, want cat-streaming", tx.CategoryID)
	}
	if store.transactions[seed.ID].CategoryID != "cat-streaming" {
		t.Errorf("outcome not persisted")
	}
}

func TestPromoteRule(t *testing.T) {
	store := newFakeStore()
	store.categories["cat-streaming"] = core.Category{ID: "cat-streaming", Name: "Streaming"}
	store.recategorized = 4
	svc := NewCategorizationService(store, &fakeResolver{}, nil)

	promo, err := svc.PromoteRule(context.Background(), "nl01 netf 0000 0000 01", "cat-streaming")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promo.Rule.CounterpartyAccount != "NL01NETF0000000001" {
		t.Errorf("rule account = %q, want normalized NL01NETF0000000001", promo.Rule.CounterpartyAccount)
	}
	if promo.Recategorized != 4 {
		t.Errorf("Recategorized = %d, want 4", promo.Recategorized)
	}
	if _, ok := store.rules["NL01NETF0000000001"]; !ok {
		t.Errorf("rule not stored under normalized account")
	}
}

func TestPromoteRule_UnknownCategory(t *testing.T) {
	store := newFakeStore()
	svc := NewCategorizationService(store, &fakeResolver{}, nil)

	_, err := svc.PromoteRule(context.Background(), "NL01NETF0000000001", "nope")
	if !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("got %v, want ErrCategoryNotFound", err)
	}
	if len(store.rules) != 0 {
		t.Errorf("rule written despite unknown category")
	}
}

func TestPromoteRule_EmptyAccount(t *testing.T) {
	svc := NewCategorizationService(newFakeStore(), &fakeResolver{}, nil)
	if _, err := svc.PromoteRule(context.Background(), "  \t ", "cat-streaming"); !errors.Is(err, core.ErrEmptyAccount) {
		t.Fatalf("got %v, want ErrEmptyAccount", err)
	}
}

func TestBatchProcessor_PartialFailures(t *testing.T) {
	store := newFakeStore()
	for _, desc := range []string{"a", "b", "c", "d", "e"} {
		tx := sampleTransaction()
		tx.ID = "tx-" + desc
		tx.RawDescription = desc
		store.transactions[tx.ID] = tx
		store.uncategorized = append(store.uncategorized, tx)
	}
	store.remaining = 2

	resolver := &fakeResolver{
		result: categorize.Result{CategoryID: "cat-other", Source: core.SourceAI},
		errFor: map[string]error{"b": errors.New("boom"), "d": errors.New("boom")},
	}
	proc := NewBatchProcessor(store, resolver, 10, nil)

	res, err := proc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Categorized != 3 {
		t.Errorf("Categorized = %d, want 3", res.Categorized)
	}
	if res.Errors != 2 {
		t.Errorf("Errors = %d, want 2", res.Errors)
	}
	if res.Remaining != 2 || !res.HasMore {
		t.Errorf("Remaining = %d HasMore = %v, want fresh count 2 and true", res.Remaining, res.HasMore)
	}
	if store.transactions["tx-b"].CategoryID != "" {
		t.Errorf("failed item must stay uncategorized")
	}
	if store.transactions["tx-c"].CategoryID != "cat-other" {
		t.Errorf("successful item not persisted")
	}
}

func TestBatchProcessor_RespectsBatchSize(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"1", "2", "3", "4"} {
		tx := sampleTransaction()
		tx.ID = "tx-" + id
		store.transactions[tx.ID] = tx
		store.uncategorized = append(store.uncategorized, tx)
	}
	resolver := &fakeResolver{result: categorize.Result{CategoryID: "cat-other", Source: core.SourceAI}}
	proc := NewBatchProcessor(store, resolver, 2, nil)

	res, err := proc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Categorized != 2 || resolver.calls != 2 {
		t.Errorf("batch of 2: categorized %d, resolver calls %d", res.Categorized, resolver.calls)
	}
}

type fakeExpenseSource struct {
	window []core.Transaction
	since  time.Time
}

func (s *fakeExpenseSource) ExpenseWindow(_ context.Context, since time.Time) ([]core.Transaction, error) {
	s.since = since
	return s.window, nil
}

func TestDetectionService_LookbackWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	var window []core.Transaction
	for month := 1; month <= 6; month++ {
		window = append(window, core.Transaction{
			Amount:         decimal.RequireFromString("9.99"),
			Date:           time.Date(2025, time.Month(month), 10, 0, 0, 0, 0, time.UTC),
			RawDescription: "SPOTIFY P0123",
			MerchantKey:    "spotify p",
		})
	}
	source := &fakeExpenseSource{window: window}
	svc := NewDetectionService(source, 12, subscription.DefaultOptions(), nil)

	report, err := svc.Detect(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := now.AddDate(0, -12, 0); !source.since.Equal(want) {
		t.Errorf("window starts at %v, want %v", source.since, want)
	}
	if len(report.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(report.Subscriptions))
	}
	if got := core.FormatAmount(report.MonthlyTotal); got != "9.99" {
		t.Errorf("monthly total = %s, want 9.99", got)
	}
}
