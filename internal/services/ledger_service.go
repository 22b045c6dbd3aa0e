package services

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"billing/internal/amqp"
	"billing/internal/core"
	"billing/internal/storage"
)

// LedgerService records manual income and expense entries and reports on
// the ledger.
type LedgerService struct {
	repo      storage.Repository
	events    EventPublisher
	summaries *SummaryCache
}

func NewLedgerService(repo storage.Repository, events EventPublisher, summaries *SummaryCache) *LedgerService {
	return &LedgerService{repo: repo, events: events, summaries: summaries}
}

// CreateTransaction stores t and returns the persisted entry. A zero date
// means today.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (*core.Transaction, error) {
	if t.Date.IsZero() {
		t.Date = core.Today()
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	id, err := s.repo.CreateLedgerEntry(ctx, &t)
	if err != nil {
		return nil, err
	}
	s.summaries.Invalidate()

	slog.InfoContext(ctx, "Transaction created",
		"id", id,
		"type", t.Type,
		"amount", t.Amount.String())

	out, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, amqp.NewTransactionCreated(id))
	return out, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions returns entries newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, core.NewError("invalid type filter").
			WithHint("type must be income or expense").
			Mark(core.ErrValidation)
	}
	return s.repo.ListTransactions(ctx, f)
}

// Summary totals income and expense over [from, to]. Either bound may be
// zero for an open range.
func (s *LedgerService) Summary(ctx context.Context, from, to core.Date) (core.Summary, error) {
	cached, gen, ok := s.summaries.Get(from, to)
	if ok {
		return cached, nil
	}

	var income, expense decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = s.repo.SumAmount(gctx, core.Income, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		expense, err = s.repo.SumAmount(gctx, core.Expense, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}

	summary := core.Summary{
		Income:  core.Round2(income),
		Expense: core.Round2(expense),
		Profit:  core.Round2(income.Sub(expense)),
	}
	s.summaries.Set(from, to, summary, gen)
	return summary, nil
}
