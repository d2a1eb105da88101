// Package memory is an in-process report writer used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"sync"
	"time"

	ports "github.com/pbialon/budgie/internal/sheets"
	"github.com/pbialon/budgie/internal/subscription"
)

type Store struct {
	mu     sync.Mutex
	report subscription.Report
	at     time.Time
	writes int
}

var _ ports.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteReport keeps only the latest report, mirroring the replace semantics
// of the spreadsheet writer.
func (s *Store) WriteReport(_ context.Context, report subscription.Report, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	s.at = now
	s.writes++
	return nil
}

// Last returns the most recent report and when it was written.
func (s *Store) Last() (subscription.Report, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.at
}

// Writes returns how many reports were written.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
