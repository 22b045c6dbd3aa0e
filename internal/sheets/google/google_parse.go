package google

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"billing/internal/core"
)

// Ledger sheet columns, A through G.
var ledgerHeader = []any{"Date", "Type", "Category", "Amount", "Reference", "Notes", "ID"}

const (
	colDate = iota
	colType
	colCategory
	colAmount
	colReference
	colNotes
	colID
)

// ledgerRow renders t in column order. Amounts are written as fixed
// two-decimal strings and left to USER_ENTERED parsing.
func ledgerRow(t core.Transaction) []any {
	return []any{
		t.Date.String(),
		string(t.Type),
		t.Category,
		t.Amount.StringFixed(2),
		t.Reference,
		t.Notes,
		strconv.FormatInt(t.ID, 10),
	}
}

// parseLedgerRow is the inverse of ledgerRow. Header and blank rows return
// ok=false.
func parseLedgerRow(row []any) (core.Transaction, bool) {
	cols := toStrings(row)
	if len(cols) <= colAmount {
		return core.Transaction{}, false
	}
	d, err := core.ParseDate(cols[colDate])
	if err != nil {
		return core.Transaction{}, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(cols[colAmount], ",", "."))
	if err != nil {
		return core.Transaction{}, false
	}
	t := core.Transaction{
		Date:      d,
		Type:      core.TransactionType(cols[colType]),
		Category:  cols[colCategory],
		Amount:    amount,
		Reference: safeGet(cols, colReference),
		Notes:     safeGet(cols, colNotes),
	}
	if id, err := strconv.ParseInt(safeGet(cols, colID), 10, 64); err == nil {
		t.ID = id
	}
	return t, true
}

// rowsWithReference returns the 1-based sheet row numbers whose reference
// column equals ref.
func rowsWithReference(values [][]any, ref string) []int {
	var out []int
	for i, row := range values {
		cols := toStrings(row)
		if strings.EqualFold(safeGet(cols, colReference), ref) {
			out = append(out, i+1)
		}
	}
	return out
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:G%d", sheet, row, row)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
