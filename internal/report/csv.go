// Package report renders invoices and ledger entries as CSV downloads.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"billing/internal/core"
)

type invoiceRecord struct {
	ID           string `csv:"id"`
	InvoiceNo    string `csv:"invoice_no"`
	Date         string `csv:"date"`
	CustomerName string `csv:"customer_name"`
	Subtotal     string `csv:"subtotal"` // Decimal as string
	Tax          string `csv:"tax"`
	Total        string `csv:"total"`
	Items        string `csv:"items"`
	Notes        string `csv:"notes"`
	CreatedAt    string `csv:"created_at"` // RFC3339 format
}

type transactionRecord struct {
	ID        string `csv:"id"`
	Date      string `csv:"date"`
	Type      string `csv:"type"`
	Category  string `csv:"category"`
	Amount    string `csv:"amount"`
	Reference string `csv:"reference"`
	Notes     string `csv:"notes"`
	CreatedAt string `csv:"created_at"`
}

// WriteInvoicesCSV writes one row per invoice header. The header row is
// written even when invoices is empty.
func WriteInvoicesCSV(w io.Writer, invoices []core.Invoice) error {
	records := make([]*invoiceRecord, 0, len(invoices))
	for _, inv := range invoices {
		records = append(records, &invoiceRecord{
			ID:           strconv.FormatInt(inv.ID, 10),
			InvoiceNo:    inv.InvoiceNo,
			Date:         inv.Date.String(),
			CustomerName: sanitizeCell(inv.CustomerName),
			Subtotal:     inv.Subtotal.StringFixed(2),
			Tax:          inv.Tax.StringFixed(2),
			Total:        inv.Total.StringFixed(2),
			Items:        strconv.Itoa(len(inv.Items)),
			Notes:        sanitizeCell(inv.Notes),
			CreatedAt:    formatTime(inv.CreatedAt),
		})
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("write invoices csv: %w", err)
	}
	return nil
}

// WriteTransactionsCSV writes one row per ledger entry.
func WriteTransactionsCSV(w io.Writer, txns []core.Transaction) error {
	records := make([]*transactionRecord, 0, len(txns))
	for _, t := range txns {
		records = append(records, &transactionRecord{
			ID:        strconv.FormatInt(t.ID, 10),
			Date:      t.Date.String(),
			Type:      string(t.Type),
			Category:  sanitizeCell(t.Category),
			Amount:    t.Amount.StringFixed(2),
			Reference: sanitizeCell(t.Reference),
			Notes:     sanitizeCell(t.Notes),
			CreatedAt: formatTime(t.CreatedAt),
		})
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("write transactions csv: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// sanitizeCell stops spreadsheet apps from evaluating free text as a
// formula.
func sanitizeCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
