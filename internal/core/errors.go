package core

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel marks. Messages must stay distinct: errors.Is compares marks by
// type and message.
var (
	ErrValidation             = errors.New("validation error")
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")
	ErrRetryLimitExceeded     = errors.New("invoice number retry limit exceeded")
	ErrPersistence            = errors.New("persistence error")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
)

const (
	CodeValidation  = "validation_error"
	CodeRetryLimit  = "retry_limit_exceeded"
	CodeDuplicate   = "duplicate_invoice_number"
	CodeNotFound    = "not_found"
	CodeForbidden   = "forbidden"
	CodePersistence = "persistence_error"
	CodeInternal    = "internal_error"
)

// Checked in order: a retry-limit error also carries the duplicate mark of
// the last attempt.
var classes = []struct {
	mark   error
	status int
	code   string
}{
	{ErrValidation, http.StatusBadRequest, CodeValidation},
	{ErrRetryLimitExceeded, http.StatusConflict, CodeRetryLimit},
	{ErrDuplicateInvoiceNumber, http.StatusConflict, CodeDuplicate},
	{ErrNotFound, http.StatusNotFound, CodeNotFound},
	{ErrForbidden, http.StatusForbidden, CodeForbidden},
	{ErrPersistence, http.StatusInternalServerError, CodePersistence},
}

// ErrorBuilder provides a fluent interface for building marked errors.
// Mark must be the last call in the chain.
type ErrorBuilder struct {
	err error
}

// NewError starts a new error builder chain
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// WithError starts a builder chain with an existing error
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithMessage adds internal context to the error
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint adds a message safe to show to API clients
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// Mark marks the error with a sentinel error
func (b *ErrorBuilder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}

// Persistence marks err as a storage fault unless it already carries a
// more specific mark.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.IsAny(err, ErrNotFound, ErrDuplicateInvoiceNumber, ErrValidation, ErrPersistence) {
		return errors.WithMessage(err, msg)
	}
	return WithError(err).WithMessage(msg).Mark(ErrPersistence)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsDuplicateInvoiceNumber(err error) bool {
	return errors.Is(err, ErrDuplicateInvoiceNumber)
}

func IsRetryLimitExceeded(err error) bool { return errors.Is(err, ErrRetryLimitExceeded) }

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	for _, c := range classes {
		if errors.Is(err, c.mark) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

// CodeFor maps an error to a machine-readable code.
func CodeFor(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.mark) {
			return c.code
		}
	}
	return CodeInternal
}

// DisplayMessage returns the client-facing hints, or a generic message for
// errors that carry none.
func DisplayMessage(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return strings.Join(hints, "; ")
	}
	switch StatusFor(err) {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusInternalServerError:
		return "Internal error"
	}
	return err.Error()
}
