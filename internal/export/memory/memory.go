// Package memory is an in-process JournalWriter used in tests and in
// deployments without a spreadsheet configured.
package memory

import (
	"context"
	"sync"

	"cashledger/internal/export"
)

type Store struct {
	mu   sync.Mutex
	rows []export.JournalRow
}

func New() *Store {
	return &Store{}
}

var _ export.JournalWriter = (*Store)(nil)

func (s *Store) Append(_ context.Context, row export.JournalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []export.JournalRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]export.JournalRow, len(s.rows))
	copy(out, s.rows)
	return out
}
