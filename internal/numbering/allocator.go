package numbering

import (
	"context"
	"fmt"

	"billing/internal/core"
)

const (
	StrategyCounter = "counter"
	StrategyCount   = "count"
)

// maxProbe bounds how far an allocator walks past numbers that are already
// taken before handing the candidate to the unique index.
const maxProbe = 1000

// Sequencer is the transactional handle allocators read and write through.
// Every call must run inside the unit of work that inserts the invoice.
type Sequencer interface {
	// NextSequence atomically increments and returns the counter for prefix.
	NextSequence(ctx context.Context, prefix string) (int64, error)
	CountInvoicesWithPrefix(ctx context.Context, prefix string) (int64, error)
	InvoiceNoExists(ctx context.Context, invoiceNo string) (bool, error)
}

// Allocator returns the next sequence value for date.
type Allocator interface {
	Next(ctx context.Context, seq Sequencer, date core.Date) (int64, error)
}

// New returns the allocator for a configured strategy name.
func New(strategy string) (Allocator, error) {
	switch strategy {
	case "", StrategyCounter:
		return CounterAllocator{}, nil
	case StrategyCount:
		return CountAllocator{}, nil
	default:
		return nil, fmt.Errorf("unknown numbering strategy %q (valid: %s, %s)", strategy, StrategyCounter, StrategyCount)
	}
}

// CountAllocator proposes count+1 over the day's existing invoices.
// Concurrent callers can observe the same count; the unique index and the
// caller's retry loop resolve the race.
type CountAllocator struct{}

func (CountAllocator) Next(ctx context.Context, seq Sequencer, date core.Date) (int64, error) {
	prefix := DayPrefix(date)
	n, err := seq.CountInvoicesWithPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("count invoices for %s: %w", prefix, err)
	}
	// Deleted invoices leave holes, so count+1 can name a live invoice.
	candidate := n + 1
	for i := 0; i < maxProbe; i++ {
		taken, err := exists(ctx, seq, date, candidate)
		if err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
		candidate++
	}
	return candidate, nil
}

// CounterAllocator increments a per-day counter row in the same transaction
// as the invoice insert.
type CounterAllocator struct{}

func (CounterAllocator) Next(ctx context.Context, seq Sequencer, date core.Date) (int64, error) {
	prefix := DayPrefix(date)
	var candidate int64
	for i := 0; i < maxProbe; i++ {
		n, err := seq.NextSequence(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("next sequence for %s: %w", prefix, err)
		}
		candidate = n
		// Caller-supplied numbers can occupy a slot the counter has not reached.
		taken, err := exists(ctx, seq, date, candidate)
		if err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
	}
	return candidate, nil
}

func exists(ctx context.Context, seq Sequencer, date core.Date, n int64) (bool, error) {
	no, err := Format(date, n)
	if err != nil {
		return false, err
	}
	taken, err := seq.InvoiceNoExists(ctx, no)
	if err != nil {
		return false, fmt.Errorf("check invoice number %s: %w", no, err)
	}
	return taken, nil
}
