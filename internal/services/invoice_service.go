package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"billing/internal/amqp"
	"billing/internal/core"
	applog "billing/internal/log"
	"billing/internal/numbering"
	"billing/internal/storage"
)

const DefaultMaxAttempts = 6

// InvoiceConfig bounds the number-allocation retry loop.
type InvoiceConfig struct {
	// MaxAttempts includes the first try (default: 6)
	MaxAttempts int

	// RetryBackoff is the initial jittered wait between attempts. Zero
	// retries immediately.
	RetryBackoff time.Duration
}

func DefaultInvoiceConfig() InvoiceConfig {
	return InvoiceConfig{MaxAttempts: DefaultMaxAttempts}
}

// InvoiceService creates invoices with unique numbers and their ledger
// entries in one atomic unit, then announces the change.
type InvoiceService struct {
	repo      storage.Repository
	alloc     numbering.Allocator
	events    EventPublisher
	summaries *SummaryCache
	config    InvoiceConfig
}

func NewInvoiceService(
	repo storage.Repository,
	alloc numbering.Allocator,
	events EventPublisher,
	summaries *SummaryCache,
	config InvoiceConfig,
) *InvoiceService {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	return &InvoiceService{
		repo:      repo,
		alloc:     alloc,
		events:    events,
		summaries: summaries,
		config:    config,
	}
}

// CreateInvoice persists inv with its items and, for a positive total, the
// matching income entry. A clash on the invoice number discards the number
// and retries with a freshly allocated one. inv is not modified.
func (s *InvoiceService) CreateInvoice(ctx context.Context, inv core.Invoice) (*core.Invoice, error) {
	inv.InvoiceNo = strings.TrimSpace(inv.InvoiceNo)
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	logger := applog.NewStructuredLogger(applog.FromContext(ctx))
	supplied := inv.InvoiceNo
	attempt := 0
	var (
		created storage.Created
		lastDup error
	)

	op := func() error {
		attempt++
		candidate := inv
		candidate.Items = append([]core.LineItem(nil), inv.Items...)

		err := s.repo.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			no, err := s.candidateNumber(ctx, tx, candidate.Date, supplied, attempt)
			if err != nil {
				return err
			}
			candidate.InvoiceNo = no

			id, err := storage.WriteInvoice(ctx, tx, &candidate, core.LedgerEntryFor(candidate))
			if err != nil {
				return err
			}
			created = storage.Created{ID: id, InvoiceNo: no}
			return nil
		})
		if err == nil {
			return nil
		}
		if !core.IsDuplicateInvoiceNumber(err) {
			return backoff.Permanent(err)
		}

		lastDup = err
		logger.LogNumberClash(ctx, candidate.InvoiceNo, attempt, s.config.MaxAttempts)
		return err
	}

	if err := backoff.Retry(op, s.retryPolicy(ctx)); err != nil {
		if core.IsDuplicateInvoiceNumber(err) && lastDup != nil {
			return nil, core.WithError(lastDup).
				WithMessage(fmt.Sprintf("gave up after %d attempts", attempt)).
				WithHint("Could not allocate a unique invoice number, please retry").
				Mark(core.ErrRetryLimitExceeded)
		}
		return nil, err
	}

	logger.LogInvoiceCreated(ctx, created.ID, created.InvoiceNo, attempt)

	if inv.Total.IsPositive() {
		s.summaries.Invalidate()
	}

	out, err := s.repo.GetInvoice(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("read back invoice %d: %w", created.ID, err)
	}

	publish(ctx, s.events, amqp.NewInvoiceCreated(created.ID, created.InvoiceNo))
	return out, nil
}

// candidateNumber honours a caller-supplied number on the first attempt
// only. Later attempts always allocate.
func (s *InvoiceService) candidateNumber(ctx context.Context, tx storage.Tx, date core.Date, supplied string, attempt int) (string, error) {
	if supplied != "" && attempt == 1 {
		return supplied, nil
	}
	seq, err := s.alloc.Next(ctx, tx, date)
	if err != nil {
		return "", fmt.Errorf("allocate invoice number: %w", err)
	}
	return numbering.Format(date, seq)
}

func (s *InvoiceService) retryPolicy(ctx context.Context) backoff.BackOffContext {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if s.config.RetryBackoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = s.config.RetryBackoff
		exp.MaxInterval = 10 * s.config.RetryBackoff
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.config.MaxAttempts-1)), ctx)
}

func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *InvoiceService) ListInvoices(ctx context.Context, f core.InvoiceFilter) ([]core.Invoice, error) {
	return s.repo.ListInvoices(ctx, f)
}

// DeleteInvoice removes the invoice, its items and its income entry
// together.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id int64) error {
	inv, err := s.repo.DeleteInvoice(ctx, id)
	if err != nil {
		return err
	}
	s.summaries.Invalidate()

	applog.FromContext(ctx).WithComponent(applog.ComponentInvoice).InfoContext(ctx, "Invoice deleted",
		applog.NewFields().WithInvoice(id, inv.InvoiceNo).WithOperation(applog.OpDelete).ToSlice()...)
	publish(ctx, s.events, amqp.NewInvoiceDeleted(id, inv.InvoiceNo))
	return nil
}
