package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"billing/internal/core"
)

// Store is an in-process ledger mirror used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu   sync.Mutex
	rows []*core.Transaction
}

func New() *Store {
	return &Store{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, &t)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// DeleteByReference clears matching rows in place, like clearing a sheet
// range, so earlier row references stay valid.
func (s *Store) DeleteByReference(_ context.Context, ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("empty reference")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, row := range s.rows {
		if row != nil && row.Reference == ref {
			s.rows[i] = nil
			n++
		}
	}
	return n, nil
}

// Entries returns the rows that have not been cleared, in append order.
func (s *Store) Entries() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.rows))
	for _, row := range s.rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out
}
