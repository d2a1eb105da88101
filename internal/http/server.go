// Package http exposes the JSON API: transaction intake, categorization,
// rule promotion and the subscription report.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/pbialon/budgie/internal/core"
	"github.com/pbialon/budgie/internal/log"
	"github.com/pbialon/budgie/internal/services"
	"github.com/pbialon/budgie/internal/storage"
	"github.com/pbialon/budgie/internal/subscription"
)

// Store is the storage surface the handlers read and write directly.
type Store interface {
	InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	ClearTransactions(ctx context.Context) (int64, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
}

// Categorizer is the categorization service surface.
type Categorizer interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	CategorizeTransaction(ctx context.Context, id string) (core.Transaction, error)
	PromoteRule(ctx context.Context, account, categoryID string) (services.Promotion, error)
}

// BatchRunner runs one categorization batch.
type BatchRunner interface {
	Run(ctx context.Context) (services.BatchResult, error)
}

// Detector runs subscription detection.
type Detector interface {
	Detect(ctx context.Context, now time.Time) (subscription.Report, error)
}

// BatchPublisher queues an asynchronous batch run. May be nil when no broker
// is configured; imports then fall back to a synchronous batch.
type BatchPublisher interface {
	PublishCategorizeBatch(ctx context.Context, batchSize int) error
}

// CatalogRefresher invalidates the cached category catalog after writes.
type CatalogRefresher interface {
	Refresh()
}

type Server struct {
	nethttp.Server

	store       Store
	categorizer Categorizer
	batch       BatchRunner
	detector    Detector
	publisher   BatchPublisher
	catalog     CatalogRefresher
	batchSize   int
	logger      *log.Logger

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. publisher and catalog may be nil.
func NewServer(addr string, store Store, categorizer Categorizer, batch BatchRunner, detector Detector, publisher BatchPublisher, catalog CatalogRefresher, batchSize int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	s := &Server{
		store:       store,
		categorizer: categorizer,
		batch:       batch,
		detector:    detector,
		publisher:   publisher,
		catalog:     catalog,
		batchSize:   batchSize,
		logger:      logger,
		rateLimiter: newRateLimiter(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(nethttp.MethodGet)
	r.HandleFunc("/readyz", handleReady).Methods(nethttp.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.middleware)

	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(nethttp.MethodPost)
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(nethttp.MethodGet)
	api.HandleFunc("/transactions", s.handleClearTransactions).Methods(nethttp.MethodDelete)
	api.HandleFunc("/transactions/import", s.handleImport).Methods(nethttp.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(nethttp.MethodGet)
	api.HandleFunc("/transactions/{id}/categorize", s.handleCategorizeTransaction).Methods(nethttp.MethodPost)
	api.HandleFunc("/categorize/batch", s.handleCategorizeBatch).Methods(nethttp.MethodPost)
	api.HandleFunc("/rules/promote", s.handlePromoteRule).Methods(nethttp.MethodPost)
	api.HandleFunc("/subscriptions", s.handleSubscriptions).Methods(nethttp.MethodGet)
	api.HandleFunc("/categories", s.handleListCategories).Methods(nethttp.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(nethttp.MethodPost)

	s.Server = nethttp.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the server and its rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// middleware adds a request id, security headers, rate limiting on writes,
// and request logging.
func (s *Server) middleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != nethttp.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, nethttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: nethttp.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	})
}

type requestIDKey struct{}

type responseWriter struct {
	nethttp.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
