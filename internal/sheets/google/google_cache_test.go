package google

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestAppendUsesCachedRowCount(t *testing.T) {
	fake := newFakeSheets(t, [][]any{ledgerHeader, {"2024-03-01", "expense", "rent", "5", "lease"}})
	c := fake.client(t)
	ctx := context.Background()

	for i, want := range []string{"Ledger!A3:G3", "Ledger!A4:G4", "Ledger!A5:G5"} {
		ref, err := c.AppendEntry(ctx, sampleEntry(fmt.Sprintf("INV-20240307-%04d", i+1)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if ref != want {
			t.Errorf("append %d ref = %q, want %q", i, ref, want)
		}
	}
	if got := fake.gets(); got != 1 {
		t.Errorf("row count read %d times, want 1", got)
	}

	// A delete invalidates the count.
	if _, err := c.DeleteByReference(ctx, "INV-20240307-0002"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	before := fake.gets()
	if _, err := c.AppendEntry(ctx, sampleEntry("INV-20240307-0009")); err != nil {
		t.Fatalf("append after delete: %v", err)
	}
	if fake.gets() != before+1 {
		t.Error("append after delete should re-read the row count")
	}
}

func TestRowCount_ReadAgain(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Client)
		want  int
	}{
		{"cached", func(c *Client) {}, 1},
		{"zero ttl", func(c *Client) { c.cacheValidDuration = 0 }, 2},
		{"invalidated", func(c *Client) { c.InvalidateRowCache() }, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeSheets(t, [][]any{ledgerHeader})
			c := fake.client(t)
			ctx := context.Background()

			if _, err := c.AppendEntry(ctx, sampleEntry("INV-20240307-0001")); err != nil {
				t.Fatal(err)
			}
			tt.setup(c)
			ref, err := c.AppendEntry(ctx, sampleEntry("INV-20240307-0002"))
			if err != nil {
				t.Fatal(err)
			}
			if ref != "Ledger!A3:G3" {
				t.Errorf("second append ref = %q", ref)
			}
			if got := fake.gets(); got != tt.want {
				t.Errorf("row count read %d times, want %d", got, tt.want)
			}
		})
	}
}

func TestAppendEntry_ConcurrentCallersGetDistinctRows(t *testing.T) {
	fake := newFakeSheets(t, [][]any{ledgerHeader})
	c := fake.client(t)
	ctx := context.Background()

	const n = 8
	refs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := c.AppendEntry(ctx, sampleEntry(fmt.Sprintf("INV-20240307-%04d", i+1)))
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, ref := range refs {
		if seen[ref] {
			t.Fatalf("row %s written twice: %v", ref, refs)
		}
		seen[ref] = true
	}
	if rows := len(fake.snapshot()); rows != n+1 {
		t.Errorf("sheet has %d rows, want %d", rows, n+1)
	}
}
