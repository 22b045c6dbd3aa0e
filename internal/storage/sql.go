package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"billing/internal/core"
)

// Queries are written with ? placeholders and rebound per driver.
const (
	invoiceColumns     = `id, invoice_no, customer_name, date, subtotal, tax, total, notes, created_at`
	itemColumns        = `id, invoice_id, description, qty, unit_price, discount, line_total`
	transactionColumns = `id, type, category, amount, date, reference, notes, created_at, mirrored_at`

	qNextSequence = `INSERT INTO invoice_sequences (prefix, last_value) VALUES (?, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`
	qCountWithPrefix = `SELECT COUNT(*) FROM invoices WHERE invoice_no LIKE ?`
	qInvoiceNoExists = `SELECT COUNT(*) FROM invoices WHERE invoice_no = ?`
	qInsertInvoice   = `INSERT INTO invoices (invoice_no, customer_name, date, subtotal, tax, total, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	qInsertItem      = `INSERT INTO invoice_items (invoice_id, description, qty, unit_price, discount, line_total) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	qInsertTxn       = `INSERT INTO transactions (type, category, amount, date, reference, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	qGetInvoice      = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	qGetItems        = `SELECT ` + itemColumns + ` FROM invoice_items WHERE invoice_id = ? ORDER BY id`
	qDeleteItems     = `DELETE FROM invoice_items WHERE invoice_id = ?`
	qDeleteInvoice   = `DELETE FROM invoices WHERE id = ?`
	qDeleteIncome    = `DELETE FROM transactions WHERE reference = ? AND type = 'income'`
	qGetTransaction  = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`
	qPendingMirror   = `SELECT ` + transactionColumns + ` FROM transactions WHERE mirrored_at IS NULL ORDER BY id LIMIT ?`
	qMarkMirrored    = `UPDATE transactions SET mirrored_at = ? WHERE id = ?`
	qSumByType       = `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE type = ?`
	qAmountsByType   = `SELECT amount FROM transactions WHERE type = ?`
)

// Deletion order respects the item foreign key.
var resetStatements = []string{
	`DELETE FROM invoice_items`,
	`DELETE FROM invoices`,
	`DELETE FROM transactions`,
	`DELETE FROM invoice_sequences`,
}

// SQLRepository implements Repository over database/sql through sqlx.
type SQLRepository struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *slog.Logger
}

func newSQLRepository(db *sqlx.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "storage", "dialect", dialect.Name()),
	}
}

// DB exposes the underlying handle, mainly for tests.
func (r *SQLRepository) DB() *sqlx.DB { return r.db }

func (r *SQLRepository) Dialect() Dialect { return r.dialect }

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Persistence(err, "ping database")
	}
	return nil
}

func (r *SQLRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	sqlxTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Persistence(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlxTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlxTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.WarnContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(ctx, &sqlTx{tx: sqlxTx, dialect: r.dialect}); err != nil {
		return err
	}
	if err = sqlxTx.Commit(); err != nil {
		return r.classify(err, "commit transaction")
	}
	return nil
}

func (r *SQLRepository) classify(err error, msg string) error {
	if r.dialect.IsDuplicateInvoiceNo(err) {
		return core.WithError(err).WithMessage(msg).Mark(core.ErrDuplicateInvoiceNumber)
	}
	return core.Persistence(err, msg)
}

func (r *SQLRepository) CreateInvoice(ctx context.Context, inv *core.Invoice) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.InsertInvoice(ctx, inv)
		return err
	})
	return id, err
}

func (r *SQLRepository) CreateInvoiceWithLedger(ctx context.Context, inv *core.Invoice, entry *core.Transaction) (Created, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = WriteInvoice(ctx, tx, inv, entry)
		return err
	})
	if err != nil {
		return Created{}, err
	}
	r.logger.InfoContext(ctx, "Invoice saved", "invoice_id", id, "invoice_no", inv.InvoiceNo)
	return Created{ID: id, InvoiceNo: inv.InvoiceNo}, nil
}

func (r *SQLRepository) CreateLedgerEntry(ctx context.Context, t *core.Transaction) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.InsertTransaction(ctx, t)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "Transaction saved",
		"id", id,
		"type", t.Type,
		"amount", t.Amount.String(),
		"date", t.Date.String())
	return id, nil
}

func (r *SQLRepository) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	var inv core.Invoice
	if err := r.db.GetContext(ctx, &inv, r.db.Rebind(qGetInvoice), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("invoice", id)
		}
		return nil, core.Persistence(err, "get invoice")
	}
	items := []core.LineItem{}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(qGetItems), id); err != nil {
		return nil, core.Persistence(err, "get invoice items")
	}
	inv.Items = items
	return &inv, nil
}

func (r *SQLRepository) ListInvoices(ctx context.Context, f core.InvoiceFilter) ([]core.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		like := r.dialect.CaseInsensitiveLike()
		where = append(where, fmt.Sprintf("(invoice_no %s ? OR customer_name %s ?)", like, like))
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	where, args = dateRange(where, args, f.From, f.To)

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	invoices := []core.Invoice{}
	if err := r.db.SelectContext(ctx, &invoices, r.db.Rebind(query), args...); err != nil {
		return nil, core.Persistence(err, "list invoices")
	}
	return invoices, nil
}

func (r *SQLRepository) DeleteInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	var deleted *core.Invoice
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		deleted, err = tx.DeleteInvoice(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "Invoice deleted", "invoice_id", id, "invoice_no", deleted.InvoiceNo)
	return deleted, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	var t core.Transaction
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(qGetTransaction), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("transaction", id)
		}
		return nil, core.Persistence(err, "get transaction")
	}
	return &t, nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Reference != "" {
		where = append(where, "reference = ?")
		args = append(args, f.Reference)
	}
	where, args = dateRange(where, args, f.From, f.To)

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	txns := []core.Transaction{}
	if err := r.db.SelectContext(ctx, &txns, r.db.Rebind(query), args...); err != nil {
		return nil, core.Persistence(err, "list transactions")
	}
	return txns, nil
}

func (r *SQLRepository) SumAmount(ctx context.Context, typ core.TransactionType, from, to core.Date) (decimal.Decimal, error) {
	where, args := dateRange(nil, []any{string(typ)}, from, to)
	query := qAmountsByType
	if r.dialect.ExactSum() {
		query = qSumByType
	}
	if len(where) > 0 {
		query += ` AND ` + strings.Join(where, " AND ")
	}
	query = r.db.Rebind(query)

	if r.dialect.ExactSum() {
		var sum decimal.Decimal
		if err := r.db.GetContext(ctx, &sum, query, args...); err != nil {
			return decimal.Zero, core.Persistence(err, fmt.Sprintf("sum %s", typ))
		}
		return sum, nil
	}
	var amounts []decimal.Decimal
	if err := r.db.SelectContext(ctx, &amounts, query, args...); err != nil {
		return decimal.Zero, core.Persistence(err, fmt.Sprintf("sum %s", typ))
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

func (r *SQLRepository) PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error) {
	txns := []core.Transaction{}
	if err := r.db.SelectContext(ctx, &txns, r.db.Rebind(qPendingMirror), limit); err != nil {
		return nil, core.Persistence(err, "list pending mirror")
	}
	return txns, nil
}

func (r *SQLRepository) MarkMirrored(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(qMarkMirrored), time.Now().UTC(), id)
	if err != nil {
		return core.Persistence(err, "mark mirrored")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("transaction", id)
	}
	return nil
}

func (r *SQLRepository) Reset(ctx context.Context) error {
	sqlxTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Persistence(err, "begin reset")
	}
	defer func() { _ = sqlxTx.Rollback() }()
	for _, stmt := range resetStatements {
		if _, err := sqlxTx.ExecContext(ctx, stmt); err != nil {
			return core.Persistence(err, "reset")
		}
	}
	if err := sqlxTx.Commit(); err != nil {
		return core.Persistence(err, "commit reset")
	}
	r.logger.WarnContext(ctx, "All data reset")
	return nil
}

func notFound(kind string, id int64) error {
	return errors.Wrapf(core.ErrNotFound, "%s %d", kind, id)
}

func dateRange(where []string, args []any, from, to core.Date) ([]string, []any) {
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, from.String())
	}
	if !to.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, to.String())
	}
	return where, args
}

// sqlTx implements Tx over a *sqlx.Tx.
type sqlTx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *sqlTx) NextSequence(ctx context.Context, prefix string) (int64, error) {
	var n int64
	if err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(qNextSequence), prefix).Scan(&n); err != nil {
		return 0, core.Persistence(err, "increment invoice sequence")
	}
	return n, nil
}

func (t *sqlTx) CountInvoicesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, t.tx.Rebind(qCountWithPrefix), prefix+"%"); err != nil {
		return 0, core.Persistence(err, "count invoices")
	}
	return n, nil
}

func (t *sqlTx) InvoiceNoExists(ctx context.Context, invoiceNo string) (bool, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, t.tx.Rebind(qInvoiceNoExists), invoiceNo); err != nil {
		return false, core.Persistence(err, "check invoice number")
	}
	return n > 0, nil
}

func (t *sqlTx) InsertInvoice(ctx context.Context, inv *core.Invoice) (int64, error) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(qInsertInvoice),
		inv.InvoiceNo, inv.CustomerName, inv.Date, inv.Subtotal, inv.Tax, inv.Total, inv.Notes, inv.CreatedAt,
	).Scan(&id)
	if err != nil {
		if t.dialect.IsDuplicateInvoiceNo(err) {
			return 0, duplicateInvoiceNo(inv.InvoiceNo, err)
		}
		return 0, core.Persistence(err, "insert invoice")
	}
	inv.ID = id

	for i := range inv.Items {
		item := &inv.Items[i]
		item.InvoiceID = id
		err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(qInsertItem),
			id, item.Description, item.Qty, item.UnitPrice, item.Discount, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			return 0, core.Persistence(err, fmt.Sprintf("insert invoice item %d", i+1))
		}
	}
	return id, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, txn *core.Transaction) (int64, error) {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(qInsertTxn),
		string(txn.Type), txn.Category, txn.Amount, txn.Date, txn.Reference, txn.Notes, txn.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, core.Persistence(err, "insert transaction")
	}
	txn.ID = id
	return id, nil
}

func (t *sqlTx) DeleteInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	var inv core.Invoice
	if err := t.tx.GetContext(ctx, &inv, t.tx.Rebind(qGetInvoice), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("invoice", id)
		}
		return nil, core.Persistence(err, "load invoice for delete")
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(qDeleteItems), id); err != nil {
		return nil, core.Persistence(err, "delete invoice items")
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(qDeleteInvoice), id); err != nil {
		return nil, core.Persistence(err, "delete invoice")
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(qDeleteIncome), inv.InvoiceNo); err != nil {
		return nil, core.Persistence(err, "delete invoice ledger entry")
	}
	return &inv, nil
}
