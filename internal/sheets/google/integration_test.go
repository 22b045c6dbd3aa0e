//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_LedgerMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ref := fmt.Sprintf("IT-%d", time.Now().UnixNano())
	entry := core.Transaction{
		Type:      core.Expense,
		Category:  "integration",
		Amount:    decimal.RequireFromString("0.01"),
		Date:      core.Today(),
		Reference: ref,
		Notes:     "integration test row",
	}

	rowRef, err := client.AppendEntry(ctx, entry)
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	t.Logf("appended %s", rowRef)

	n, err := client.DeleteByReference(ctx, ref)
	if err != nil {
		t.Fatalf("DeleteByReference: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared %d rows, want 1", n)
	}
}
