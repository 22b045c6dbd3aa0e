// Package numbering produces human-readable invoice numbers of the form
// INV-YYYYMMDD-NNNN and allocates the per-day sequence behind them.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"billing/internal/core"
)

// Prefix starts every generated invoice number.
const Prefix = "INV"

const dayLayout = "20060102"

// DayPrefix returns the INV-YYYYMMDD key that scopes a day's sequence.
func DayPrefix(d core.Date) string {
	return Prefix + "-" + d.Format(dayLayout)
}

// Format maps (date, seq) to INV-YYYYMMDD-NNNN. Sequences of five or more
// digits are printed in full.
func Format(d core.Date, seq int64) (string, error) {
	if d.IsZero() {
		return "", core.NewError("format invoice number: zero date").
			WithHint("invoice date is required").
			Mark(core.ErrValidation)
	}
	if seq < 1 {
		return "", core.NewError(fmt.Sprintf("format invoice number: sequence %d", seq)).
			WithHint("invoice sequence must be positive").
			Mark(core.ErrValidation)
	}
	return fmt.Sprintf("%s-%04d", DayPrefix(d), seq), nil
}

// Parse is the inverse of Format.
func Parse(no string) (core.Date, int64, error) {
	parts := strings.Split(no, "-")
	if len(parts) != 3 || parts[0] != Prefix || len(parts[1]) != len(dayLayout) || len(parts[2]) < 4 {
		return core.Date{}, 0, core.NewError(fmt.Sprintf("malformed invoice number %q", no)).
			Mark(core.ErrValidation)
	}
	t, err := time.Parse(dayLayout, parts[1])
	if err != nil {
		return core.Date{}, 0, core.NewError(fmt.Sprintf("malformed invoice date in %q", no)).
			Mark(core.ErrValidation)
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seq < 1 {
		return core.Date{}, 0, core.NewError(fmt.Sprintf("malformed invoice sequence in %q", no)).
			Mark(core.ErrValidation)
	}
	return core.DateOf(t), seq, nil
}
