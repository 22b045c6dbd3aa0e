package worker

import (
	"context"
	"fmt"
	"log/slog"

	"billing/internal/amqp"
	"billing/internal/sheets"
)

// PendingProcessor mirrors ledger entries that are not in the spreadsheet
// yet. Implemented by services.SyncProcessor.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

// SyncWorker turns billing events into spreadsheet updates.
type SyncWorker struct {
	processor PendingProcessor
	deleter   sheets.LedgerDeleter
}

func NewSyncWorker(processor PendingProcessor, deleter sheets.LedgerDeleter) *SyncWorker {
	return &SyncWorker{
		processor: processor,
		deleter:   deleter,
	}
}

// HandleEvent is the consumer callback passed to amqp.Client.ConsumeEvents.
// Returning an error requeues the message once.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	slog.InfoContext(ctx, "Processing event",
		"event", msg.Event,
		"invoice_id", msg.InvoiceID,
		"invoice_no", msg.InvoiceNo,
		"transaction_id", msg.TransactionID)

	switch msg.Event {
	case amqp.EventInvoiceCreated, amqp.EventTransactionCreated:
		// Events carry ids only; the pending scan picks up the new rows.
		if _, err := w.processor.ProcessPending(ctx); err != nil {
			return fmt.Errorf("mirror pending entries: %w", err)
		}
		return nil

	case amqp.EventInvoiceDeleted:
		return w.handleInvoiceDeleted(ctx, msg)

	default:
		slog.WarnContext(ctx, "Ignoring unknown event", "event", msg.Event)
		return nil
	}
}

func (w *SyncWorker) handleInvoiceDeleted(ctx context.Context, msg *amqp.EventMessage) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No ledger deleter configured, skipping spreadsheet cleanup",
			"invoice_no", msg.InvoiceNo)
		return nil
	}

	n, err := w.deleter.DeleteByReference(ctx, msg.InvoiceNo)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to clear invoice rows",
			"invoice_no", msg.InvoiceNo,
			"error", err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("clear rows for %s: %w", msg.InvoiceNo, err)
	}

	slog.InfoContext(ctx, "Cleared invoice from spreadsheet",
		"invoice_no", msg.InvoiceNo,
		"rows", n)
	return nil
}

// StartupSyncCheck mirrors whatever was missed while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total := 0
	for {
		n, err := w.processor.ProcessPending(ctx)
		total += n
		if err != nil {
			return fmt.Errorf("startup sync: %w", err)
		}
		if n == 0 {
			break
		}
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending ledger entries found on startup")
	} else {
		slog.InfoContext(ctx, "Startup sync completed", "mirrored", total)
	}
	return nil
}
