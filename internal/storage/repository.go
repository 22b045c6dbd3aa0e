package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"billing/internal/core"
	"billing/internal/numbering"
)

// Tx is the handle passed to WithTx callbacks. Every call runs inside the
// same atomic unit.
type Tx interface {
	numbering.Sequencer

	// InsertInvoice writes the header and its items, setting inv.ID.
	// A clash on invoice_no is reported as core.ErrDuplicateInvoiceNumber.
	InsertInvoice(ctx context.Context, inv *core.Invoice) (int64, error)
	InsertTransaction(ctx context.Context, t *core.Transaction) (int64, error)
	// DeleteInvoice removes the invoice, its items and the income entries
	// referencing its number. It returns the deleted header.
	DeleteInvoice(ctx context.Context, id int64) (*core.Invoice, error)
}

// Repository is implemented by the SQL backends and the in-memory store.
type Repository interface {
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateInvoice(ctx context.Context, inv *core.Invoice) (int64, error)
	CreateInvoiceWithLedger(ctx context.Context, inv *core.Invoice, entry *core.Transaction) (Created, error)
	CreateLedgerEntry(ctx context.Context, t *core.Transaction) (int64, error)
	GetInvoice(ctx context.Context, id int64) (*core.Invoice, error)
	ListInvoices(ctx context.Context, f core.InvoiceFilter) ([]core.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) (*core.Invoice, error)

	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	SumAmount(ctx context.Context, typ core.TransactionType, from, to core.Date) (decimal.Decimal, error)

	// PendingMirror returns ledger entries not yet copied to the spreadsheet.
	PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkMirrored(ctx context.Context, id int64) error

	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Backupper is implemented by stores that can snapshot themselves before a
// reset.
type Backupper interface {
	Backup(ctx context.Context) (string, error)
}

// Created identifies a freshly persisted invoice.
type Created struct {
	ID        int64  `json:"id"`
	InvoiceNo string `json:"invoice_no"`
}

// WriteInvoice inserts inv and, when entry is non-nil, its ledger entry
// through tx. Callers own the transaction.
func WriteInvoice(ctx context.Context, tx Tx, inv *core.Invoice, entry *core.Transaction) (int64, error) {
	id, err := tx.InsertInvoice(ctx, inv)
	if err != nil {
		return 0, fmt.Errorf("insert invoice %s: %w", inv.InvoiceNo, err)
	}
	if entry != nil {
		if _, err := tx.InsertTransaction(ctx, entry); err != nil {
			return 0, fmt.Errorf("insert ledger entry for %s: %w", inv.InvoiceNo, err)
		}
	}
	return id, nil
}

func duplicateInvoiceNo(no string, cause error) error {
	msg := fmt.Sprintf("invoice number %s already exists", no)
	if cause == nil {
		return core.NewError(msg).Mark(core.ErrDuplicateInvoiceNumber)
	}
	return core.WithError(cause).WithMessage(msg).Mark(core.ErrDuplicateInvoiceNumber)
}
