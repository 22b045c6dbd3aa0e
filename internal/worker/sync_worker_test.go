package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"billing/internal/amqp"
	"billing/internal/core"
	"billing/internal/numbering"
	"billing/internal/services"
	"billing/internal/sheets/memory"
	"billing/internal/storage"
)

type stubProcessor struct {
	batches []int
	calls   int
	err     error
}

func (p *stubProcessor) ProcessPending(context.Context) (int, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	if len(p.batches) == 0 {
		return 0, nil
	}
	n := p.batches[0]
	p.batches = p.batches[1:]
	return n, nil
}

type failingDeleter struct{}

func (failingDeleter) DeleteByReference(context.Context, string) (int, error) {
	return 0, errors.New("sheets unavailable")
}

func TestHandleEvent_Routing(t *testing.T) {
	ctx := context.Background()

	t.Run("created events trigger a mirror pass", func(t *testing.T) {
		p := &stubProcessor{}
		w := NewSyncWorker(p, memory.New())
		for _, msg := range []*amqp.EventMessage{
			amqp.NewInvoiceCreated(1, "INV-20240307-0001"),
			amqp.NewTransactionCreated(2),
		} {
			if err := w.HandleEvent(ctx, msg); err != nil {
				t.Fatalf("HandleEvent(%s): %v", msg.Event, err)
			}
		}
		if p.calls != 2 {
			t.Errorf("ProcessPending called %d times, want 2", p.calls)
		}
	})

	t.Run("mirror failure is returned for requeue", func(t *testing.T) {
		w := NewSyncWorker(&stubProcessor{err: errors.New("boom")}, nil)
		if err := w.HandleEvent(ctx, amqp.NewTransactionCreated(2)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("deleted without deleter is skipped", func(t *testing.T) {
		w := NewSyncWorker(&stubProcessor{}, nil)
		if err := w.HandleEvent(ctx, amqp.NewInvoiceDeleted(1, "INV-20240307-0001")); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	})

	t.Run("delete failure is returned", func(t *testing.T) {
		w := NewSyncWorker(&stubProcessor{}, failingDeleter{})
		if err := w.HandleEvent(ctx, amqp.NewInvoiceDeleted(1, "INV-20240307-0001")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown event is ignored", func(t *testing.T) {
		p := &stubProcessor{}
		w := NewSyncWorker(p, nil)
		if err := w.HandleEvent(ctx, &amqp.EventMessage{Event: "invoice.paid"}); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
		if p.calls != 0 {
			t.Error("unknown event should not trigger a pass")
		}
	})
}

func TestStartupSyncCheck_DrainsBacklog(t *testing.T) {
	p := &stubProcessor{batches: []int{50, 50, 3}}
	w := NewSyncWorker(p, nil)
	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if p.calls != 4 {
		t.Errorf("ProcessPending called %d times, want 4", p.calls)
	}

	failing := NewSyncWorker(&stubProcessor{err: errors.New("db down")}, nil)
	if err := failing.StartupSyncCheck(context.Background()); err == nil {
		t.Error("expected startup error")
	}
}

// Created and deleted invoices end up mirrored and cleared end to end.
func TestSyncWorker_InvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	mirror := memory.New()
	invoices := services.NewInvoiceService(repo, mustAllocator(t), nil, nil, services.DefaultInvoiceConfig())
	w := NewSyncWorker(services.NewSyncProcessor(repo, mirror, services.DefaultSyncProcessorConfig()), mirror)

	inv, err := invoices.CreateInvoice(ctx, core.Invoice{
		Date:  core.NewDate(2024, 3, 7),
		Total: decimal.NewFromInt(250),
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if err := w.HandleEvent(ctx, amqp.NewInvoiceCreated(inv.ID, inv.InvoiceNo)); err != nil {
		t.Fatalf("created: %v", err)
	}
	rows := mirror.Entries()
	if len(rows) != 1 || rows[0].Reference != inv.InvoiceNo {
		t.Fatalf("mirror rows = %+v", rows)
	}

	if err := invoices.DeleteInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("DeleteInvoice: %v", err)
	}
	if err := w.HandleEvent(ctx, amqp.NewInvoiceDeleted(inv.ID, inv.InvoiceNo)); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if rows := mirror.Entries(); len(rows) != 0 {
		t.Errorf("rows left after delete: %+v", rows)
	}
}

func mustAllocator(t *testing.T) numbering.Allocator {
	t.Helper()
	a, err := numbering.New(numbering.StrategyCounter)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
