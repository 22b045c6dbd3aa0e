package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"billing/internal/core"
)

// MemoryRepository keeps everything in process. WithTx holds the mutex for
// the whole callback and stages writes on a copy, so a failed callback
// leaves no trace.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	invoices     map[int64]core.Invoice
	transactions map[int64]core.Transaction
	sequences    map[string]int64
	nextInvoice  int64
	nextItem     int64
	nextTxn      int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		invoices:     map[int64]core.Invoice{},
		transactions: map[int64]core.Transaction{},
		sequences:    map[string]int64{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		invoices:     make(map[int64]core.Invoice, len(s.invoices)),
		transactions: make(map[int64]core.Transaction, len(s.transactions)),
		sequences:    make(map[string]int64, len(s.sequences)),
		nextInvoice:  s.nextInvoice,
		nextItem:     s.nextItem,
		nextTxn:      s.nextTxn,
	}
	for id, inv := range s.invoices {
		c.invoices[id] = inv
	}
	for id, t := range s.transactions {
		c.transactions[id] = t
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.state.clone()
	if err := fn(ctx, &memTx{s: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *MemoryRepository) CreateInvoice(ctx context.Context, inv *core.Invoice) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.InsertInvoice(ctx, inv)
		return err
	})
	return id, err
}

func (r *MemoryRepository) CreateInvoiceWithLedger(ctx context.Context, inv *core.Invoice, entry *core.Transaction) (Created, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = WriteInvoice(ctx, tx, inv, entry)
		return err
	})
	if err != nil {
		return Created{}, err
	}
	return Created{ID: id, InvoiceNo: inv.InvoiceNo}, nil
}

func (r *MemoryRepository) CreateLedgerEntry(ctx context.Context, t *core.Transaction) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.InsertTransaction(ctx, t)
		return err
	})
	return id, err
}

func (r *MemoryRepository) GetInvoice(_ context.Context, id int64) (*core.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return nil, notFound("invoice", id)
	}
	inv.Items = append([]core.LineItem{}, inv.Items...)
	return &inv, nil
}

func (r *MemoryRepository) ListInvoices(_ context.Context, f core.InvoiceFilter) ([]core.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := []core.Invoice{}
	for _, inv := range r.state.invoices {
		if q != "" && !strings.Contains(strings.ToLower(inv.InvoiceNo), q) &&
			!strings.Contains(strings.ToLower(inv.CustomerName), q) {
			continue
		}
		if !inRange(inv.Date, f.From, f.To) {
			continue
		}
		inv.Items = nil
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) DeleteInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	var deleted *core.Invoice
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		deleted, err = tx.DeleteInvoice(ctx, id)
		return err
	})
	return deleted, err
}

func (r *MemoryRepository) GetTransaction(_ context.Context, id int64) (*core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.transactions[id]
	if !ok {
		return nil, notFound("transaction", id)
	}
	return &t, nil
}

func (r *MemoryRepository) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []core.Transaction{}
	for _, t := range r.state.transactions {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Reference != "" && t.Reference != f.Reference {
			continue
		}
		if !inRange(t.Date, f.From, f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) SumAmount(_ context.Context, typ core.TransactionType, from, to core.Date) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, t := range r.state.transactions {
		if t.Type == typ && inRange(t.Date, from, to) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (r *MemoryRepository) PendingMirror(_ context.Context, limit int) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []core.Transaction{}
	for _, t := range r.state.transactions {
		if t.MirroredAt == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkMirrored(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.transactions[id]
	if !ok {
		return notFound("transaction", id)
	}
	now := time.Now().UTC()
	t.MirroredAt = &now
	r.state.transactions[id] = t
	return nil
}

func (r *MemoryRepository) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = newMemState()
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

func inRange(d, from, to core.Date) bool {
	if !from.IsZero() && d.Before(from.Time) {
		return false
	}
	if !to.IsZero() && d.After(to.Time) {
		return false
	}
	return true
}

// memTx mutates a staged copy of the state.
type memTx struct {
	s *memState
}

func (t *memTx) NextSequence(_ context.Context, prefix string) (int64, error) {
	t.s.sequences[prefix]++
	return t.s.sequences[prefix], nil
}

func (t *memTx) CountInvoicesWithPrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for _, inv := range t.s.invoices {
		if strings.HasPrefix(inv.InvoiceNo, prefix) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InvoiceNoExists(_ context.Context, invoiceNo string) (bool, error) {
	for _, inv := range t.s.invoices {
		if inv.InvoiceNo == invoiceNo {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertInvoice(ctx context.Context, inv *core.Invoice) (int64, error) {
	if taken, _ := t.InvoiceNoExists(ctx, inv.InvoiceNo); taken {
		return 0, duplicateInvoiceNo(inv.InvoiceNo, nil)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	t.s.nextInvoice++
	inv.ID = t.s.nextInvoice

	stored := *inv
	stored.Items = make([]core.LineItem, len(inv.Items))
	for i := range inv.Items {
		t.s.nextItem++
		inv.Items[i].ID = t.s.nextItem
		inv.Items[i].InvoiceID = inv.ID
		stored.Items[i] = inv.Items[i]
	}
	t.s.invoices[inv.ID] = stored
	return inv.ID, nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *core.Transaction) (int64, error) {
	if !txn.Type.Valid() {
		return 0, core.Persistence(errors.Newf("invalid transaction type %q", txn.Type), "insert transaction")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	t.s.nextTxn++
	txn.ID = t.s.nextTxn
	t.s.transactions[txn.ID] = *txn
	return txn.ID, nil
}

func (t *memTx) DeleteInvoice(_ context.Context, id int64) (*core.Invoice, error) {
	inv, ok := t.s.invoices[id]
	if !ok {
		return nil, notFound("invoice", id)
	}
	delete(t.s.invoices, id)
	for tid, txn := range t.s.transactions {
		if txn.Reference == inv.InvoiceNo && txn.Type == core.Income {
			delete(t.s.transactions, tid)
		}
	}
	inv.Items = nil
	return &inv, nil
}
