package http

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/storage"
	"github.com/pbialon/budgie/internal/subscription"
)

type transactionRequest struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Date                string `json:"date"`
	RawDescription      string `json:"raw_description"`
	CounterpartyName    string `json:"counterparty_name"`
	CounterpartyAccount string `json:"counterparty_account"`
	IsIncome            bool   `json:"is_income"`
	IsIgnored           bool   `json:"is_ignored"`
}

func (req transactionRequest) toTransaction() (core.Transaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Amount:              amount,
		Currency:            req.Currency,
		Date:                date,
		RawDescription:      strings.TrimSpace(req.RawDescription),
		CounterpartyName:    strings.TrimSpace(req.CounterpartyName),
		CounterpartyAccount: req.CounterpartyAccount,
		IsIncome:            req.IsIncome,
		IsIgnored:           req.IsIgnored,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.ErrInvalidDate
}

type transactionResponse struct {
	ID                  string `json:"id"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Date                string `json:"date"`
	RawDescription      string `json:"raw_description"`
	DisplayName         string `json:"display_name"`
	Description         string `json:"description"`
	CounterpartyName    string `json:"counterparty_name"`
	CounterpartyAccount string `json:"counterparty_account"`
	MerchantKey         string `json:"merchant_key"`
	CategoryID          string `json:"category_id"`
	CategorySource      string `json:"category_source"`
	IsIncome            bool   `json:"is_income"`
	IsIgnored           bool   `json:"is_ignored"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  tx.ID,
		Amount:              core.FormatAmount(tx.Amount),
		Currency:            tx.Currency,
		Date:                tx.Date.UTC().Format(time.RFC3339),
		RawDescription:      tx.RawDescription,
		DisplayName:         tx.DisplayName,
		Description:         tx.Description,
		CounterpartyName:    tx.CounterpartyName,
		CounterpartyAccount: tx.CounterpartyAccount,
		MerchantKey:         tx.MerchantKey,
		CategoryID:          tx.CategoryID,
		CategorySource:      string(tx.CategorySource),
		IsIncome:            tx.IsIncome,
		IsIgnored:           tx.IsIgnored,
	}
}

func (s *Server) handleCreateTransaction(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, nethttp.StatusBadRequest, err.Error())
		return
	}
	tx, err := req.toTransaction()
	if err != nil {
		respondError(w, nethttp.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.categorizer.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, nethttp.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleGetTransaction(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := mux.Vars(r)["id"]
	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		respondError(w, nethttp.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, nethttp.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w nethttp.ResponseWriter, r *nethttp.Request) {
	var filter storage.TransactionFilter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, nethttp.StatusBadRequest, "invalid from date")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, nethttp.StatusBadRequest, "invalid to date")
			return
		}
		filter.To = t
	}
	filter.CategoryID = q.Get("category_id")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, nethttp.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	txs, err := s.store.ListTransactions(r.Context(), filter)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	respondJSON(w, nethttp.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleClearTransactions(w nethttp.ResponseWriter, r *nethttp.Request) {
	n, err := s.store.ClearTransactions(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, nethttp.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) handleCategorizeTransaction(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := mux.Vars(r)["id"]
	tx, err := s.categorizer.CategorizeTransaction(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, nethttp.StatusNotFound, err.Error())
			return
		}
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, nethttp.StatusOK, toTransactionResponse(tx))
}

type importRequest struct {
	Transactions []transactionRequest `json:"transactions"`
}

// handleImport stores a batch of transactions uncategorized and queues an
// asynchronous categorization batch. Without a broker the batch runs inline.
func (s *Server) handleImport(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, nethttp.StatusBadRequest, err.Error())
		return
	}
	if len(req.Transactions) == 0 {
		respondError(w, nethttp.StatusUnprocessableEntity, "no transactions to import")
		return
	}

	imported, failed := 0, 0
	for _, item := range req.Transactions {
		tx, err := item.toTransaction()
		if err != nil {
			failed++
			continue
		}
		if _, err := s.store.InsertTransaction(r.Context(), tx); err != nil {
			failed++
			s.logger.WarnContext(r.Context(), "Import row failed",
				log.FieldOperation, log.OpImport,
				log.FieldError, err)
			continue
		}
		imported++
	}

	queued := false
	if s.publisher != nil {
		if err := s.publisher.PublishCategorizeBatch(r.Context(), s.batchSize); err != nil {
			s.logger.WarnContext(r.Context(), "Queueing categorize batch failed",
				log.FieldError, err)
		} else {
			queued = true
		}
	}
	if !queued && s.batch != nil {
		if _, err := s.batch.Run(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Inline categorize batch failed",
				log.FieldError, err)
		}
	}

	respondJSON(w, nethttp.StatusOK, map[string]any{
		"imported": imported,
		"failed":   failed,
		"queued":   queued,
	})
}

func (s *Server) handleCategorizeBatch(w nethttp.ResponseWriter, r *nethttp.Request) {
	result, err := s.batch.Run(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, nethttp.StatusOK, map[string]any{
		"categorized": result.Categorized,
		"errors":      result.Errors,
		"remaining":   result.Remaining,
		"has_more":    result.HasMore,
	})
}

type promoteRequest struct {
	CounterpartyAccount string `json:"counterparty_account"`
	CategoryID          string `json:"category_id"`
}

func (s *Server) handlePromoteRule(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, nethttp.StatusBadRequest, err.Error())
		return
	}

	promo, err := s.categorizer.PromoteRule(r.Context(), req.CounterpartyAccount, req.CategoryID)
	switch {
	case errors.Is(err, core.ErrEmptyAccount):
		respondError(w, nethttp.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, core.ErrCategoryNotFound):
		respondError(w, nethttp.StatusNotFound, err.Error())
		return
	case err != nil:
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, nethttp.StatusOK, map[string]any{
		"rule": map[string]any{
			"id":                   promo.Rule.ID,
			"counterparty_account": promo.Rule.CounterpartyAccount,
			"category_id":          promo.Rule.CategoryID,
		},
		"recategorized": promo.Recategorized,
	})
}

type subscriptionResponse struct {
	MerchantKey   string  `json:"merchant_key"`
	MerchantName  string  `json:"merchant_name"`
	Amount        string  `json:"amount"`
	Cadence       string  `json:"cadence"`
	MonthlyAmount string  `json:"monthly_amount"`
	Confidence    float64 `json:"confidence"`
	NextDate      string  `json:"next_date"`
	Occurrences   int     `json:"occurrences"`
}

type upcomingResponse struct {
	Date         string `json:"date"`
	MerchantName string `json:"merchant_name"`
	Amount       string `json:"amount"`
}

func (s *Server) handleSubscriptions(w nethttp.ResponseWriter, r *nethttp.Request) {
	report, err := s.detector.Detect(r.Context(), time.Now())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, nethttp.StatusOK, toReportResponse(report))
}

func toReportResponse(report subscription.Report) map[string]any {
	subs := make([]subscriptionResponse, 0, len(report.Subscriptions))
	for _, sub := range report.Subscriptions {
		subs = append(subs, subscriptionResponse{
			MerchantKey:   sub.MerchantKey,
			MerchantName:  sub.MerchantName,
			Amount:        core.FormatAmount(sub.Amount),
			Cadence:       string(sub.Cadence),
			MonthlyAmount: core.FormatAmount(sub.MonthlyAmount()),
			Confidence:    sub.Confidence,
			NextDate:      sub.NextDate().UTC().Format("2006-01-02"),
			Occurrences:   len(sub.Occurrences),
		})
	}
	upcoming := make([]upcomingResponse, 0, len(report.Upcoming))
	for _, u := range report.Upcoming {
		upcoming = append(upcoming, upcomingResponse{
			Date:         u.Date.UTC().Format("2006-01-02"),
			MerchantName: u.MerchantName,
			Amount:       core.FormatAmount(u.Amount),
		})
	}
	return map[string]any{
		"subscriptions": subs,
		"monthly_total": core.FormatAmount(report.MonthlyTotal),
		"upcoming":      upcoming,
	}
}

type categoryRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	AIPrompt  string `json:"ai_prompt"`
	IsSavings bool   `json:"is_savings"`
}

func (s *Server) handleListCategories(w nethttp.ResponseWriter, r *nethttp.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(cats))
	for _, c := range cats {
		out = append(out, map[string]any{
			"id":         c.ID,
			"name":       c.Name,
			"color":      c.Color,
			"ai_prompt":  c.AIPrompt,
			"is_savings": c.IsSavings,
		})
	}
	respondJSON(w, nethttp.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleCreateCategory(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, nethttp.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.CreateCategory(r.Context(), core.Category{
		Name:      strings.TrimSpace(req.Name),
		Color:     req.Color,
		AIPrompt:  req.AIPrompt,
		IsSavings: req.IsSavings,
	})
	if err != nil {
		respondError(w, nethttp.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.catalog != nil {
		s.catalog.Refresh()
	}
	respondJSON(w, nethttp.StatusCreated, map[string]any{
		"id":   created.ID,
		"name": created.Name,
	})
}

//
// helpers
//

func decodeJSON(r *nethttp.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(nethttp.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}

func respondJSON(w nethttp.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w nethttp.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondDomainError(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNoCategories):
		respondError(w, nethttp.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyDescription):
		respondError(w, nethttp.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		respondError(w, nethttp.StatusInternalServerError, "internal error")
	}
}
