package services

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"billing/internal/core"
	"billing/internal/storage"
)

func TestReset_Guards(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		confirm    string
		given      string
		wantStatus int
		wantHint   string
	}{
		{"missing confirm", "", "", "", http.StatusBadRequest, "You must provide confirm: 'RESET' to proceed."},
		{"lowercase confirm", "", "reset", "", http.StatusBadRequest, "You must provide confirm: 'RESET' to proceed."},
		{"missing secret", "s3cret", "RESET", "", http.StatusForbidden, "Missing or invalid reset secret."},
		{"wrong secret", "s3cret", "RESET", "guess", http.StatusForbidden, "Missing or invalid reset secret."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := storage.NewMemoryRepository()
			svc := NewAdminService(repo, tt.secret, nil)

			_, err := svc.Reset(context.Background(), tt.confirm, tt.given)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := core.StatusFor(err); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
			if got := core.DisplayMessage(err); got != tt.wantHint {
				t.Errorf("message = %q, want %q", got, tt.wantHint)
			}
		})
	}
}

func TestReset_ClearsDataAndCounters(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateInvoice(ctx, payload("10")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Summary(ctx, core.Date{}, core.Date{}); err != nil {
		t.Fatal(err)
	}

	admin := NewAdminService(f.repo, "s3cret", f.cache)
	res, err := admin.Reset(ctx, ResetConfirmation, "s3cret")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res.Backup != "" {
		t.Errorf("memory store should not produce a backup, got %q", res.Backup)
	}

	invs, _ := f.svc.ListInvoices(ctx, core.InvoiceFilter{})
	if len(invs) != 0 {
		t.Errorf("%d invoices survived reset", len(invs))
	}
	sum, _ := f.ledger.Summary(ctx, core.Date{}, core.Date{})
	if !sum.Income.IsZero() {
		t.Errorf("summary after reset = %+v", sum)
	}

	// Counters restart.
	inv, err := f.svc.CreateInvoice(ctx, payload("10"))
	if err != nil {
		t.Fatal(err)
	}
	if inv.InvoiceNo != "INV-20240307-0001" {
		t.Errorf("invoice_no after reset = %q", inv.InvoiceNo)
	}
}

func TestReset_SQLiteBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "billing.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	f := newFixture(t, repo, DefaultInvoiceConfig())
	if _, err := f.svc.CreateInvoice(ctx, payload("10")); err != nil {
		t.Fatal(err)
	}

	res, err := NewAdminService(repo, "", nil).Reset(ctx, ResetConfirmation, "")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !strings.HasPrefix(res.Backup, dbPath+".bak.") {
		t.Errorf("backup path = %q", res.Backup)
	}
	if _, err := os.Stat(res.Backup); err != nil {
		t.Errorf("backup file missing: %v", err)
	}

	backup, err := storage.NewSQLiteRepository(res.Backup)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer backup.Close()
	invs, err := backup.ListInvoices(ctx, core.InvoiceFilter{})
	if err != nil || len(invs) != 1 {
		t.Errorf("backup should hold the pre-reset invoice: n=%d err=%v", len(invs), err)
	}
}
