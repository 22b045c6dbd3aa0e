package core

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestStatusFor(t *testing.T) {
	dup := NewError("UNIQUE constraint failed: invoices.invoice_no").Mark(ErrDuplicateInvoiceNumber)
	exhausted := WithError(dup).WithMessage("gave up after 6 attempts").Mark(ErrRetryLimitExceeded)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", NewError("bad").Mark(ErrValidation), http.StatusBadRequest, CodeValidation},
		{"retry limit wins over duplicate", exhausted, http.StatusConflict, CodeRetryLimit},
		{"not found", fmt.Errorf("get invoice: %w", ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"forbidden", NewError("secret").Mark(ErrForbidden), http.StatusForbidden, CodeForbidden},
		{"persistence", Persistence(errors.New("disk full"), "insert invoice"), http.StatusInternalServerError, CodePersistence},
		{"unmarked", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusFor(tc.err); got != tc.status {
				t.Errorf("status = %d, want %d", got, tc.status)
			}
			if got := CodeFor(tc.err); got != tc.code {
				t.Errorf("code = %s, want %s", got, tc.code)
			}
		})
	}

	if !IsDuplicateInvoiceNumber(exhausted) {
		t.Errorf("retry limit error should still wrap the last duplicate")
	}
}

func TestPersistenceKeepsSpecificMarks(t *testing.T) {
	dup := NewError("dup").Mark(ErrDuplicateInvoiceNumber)
	err := Persistence(dup, "insert invoice")
	if errors.Is(err, ErrPersistence) {
		t.Fatalf("duplicate should not be re-marked as persistence fault")
	}
	if !IsDuplicateInvoiceNumber(err) {
		t.Fatalf("duplicate mark lost")
	}
	if Persistence(nil, "noop") != nil {
		t.Fatalf("nil in, nil out")
	}
}

func TestDisplayMessage(t *testing.T) {
	err := NewError("amount empty").WithHint("amount required").Mark(ErrValidation)
	if got := DisplayMessage(fmt.Errorf("create transaction: %w", err)); got != "amount required" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayMessage(ErrNotFound); got != "Not found" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayMessage(Persistence(errors.New("db locked"), "x")); got != "Internal error" {
		t.Fatalf("got %q", got)
	}
}
