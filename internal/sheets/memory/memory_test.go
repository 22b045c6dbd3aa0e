package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"billing/internal/core"
)

func entry(ref string, amount int64) core.Transaction {
	return core.Transaction{
		Type:      core.Income,
		Category:  core.SalesCategory,
		Amount:    decimal.NewFromInt(amount),
		Date:      core.NewDate(2024, 3, 7),
		Reference: ref,
	}
}

func TestStoreAppendAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, ref := range []string{"INV-20240307-0001", "INV-20240307-0002", "INV-20240307-0001"} {
		got, err := s.AppendEntry(ctx, entry(ref, int64(10*(i+1))))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if want := "mem:" + string(rune('1'+i)); got != want {
			t.Errorf("row ref = %q, want %q", got, want)
		}
	}

	n, err := s.DeleteByReference(ctx, "INV-20240307-0001")
	if err != nil || n != 2 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	rows := s.Entries()
	if len(rows) != 1 || rows[0].Reference != "INV-20240307-0002" {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}

	if n, _ := s.DeleteByReference(ctx, "INV-20240307-0009"); n != 0 {
		t.Errorf("deleting unknown ref cleared %d rows", n)
	}
	if _, err := s.DeleteByReference(ctx, " "); err == nil {
		t.Error("empty reference should fail")
	}

	// References stay stable after a clear.
	got, _ := s.AppendEntry(ctx, entry("INV-20240307-0003", 5))
	if got != "mem:4" {
		t.Errorf("row ref after clear = %q, want mem:4", got)
	}
}

func TestStoreRejectsInvalidEntry(t *testing.T) {
	s := New()
	bad := entry("x", 1)
	bad.Type = "refund"
	if _, err := s.AppendEntry(context.Background(), bad); !core.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}
