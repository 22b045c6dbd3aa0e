// Package http exposes the billing JSON API.
//
// This file holds the request DTOs, their validation rules and the helpers
// that turn query strings and path values into domain filters.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"billing/internal/core"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// Amount is a JSON number or a numeric string. Strings may use a decimal
// comma, as in "12,34".
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if s, err := strconv.Unquote(string(b)); err == nil {
		d, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	}
	return a.Decimal.UnmarshalJSON(b)
}

func (a *Amount) value() *decimal.Decimal {
	if a == nil {
		return nil
	}
	d := a.Decimal
	return &d
}

// LineItemRequest is one line of a CreateInvoiceRequest.
type LineItemRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Qty         int64   `json:"qty" validate:"gte=0"`
	UnitPrice   Amount  `json:"unit_price"`
	Discount    *Amount `json:"discount"`
	LineTotal   Amount  `json:"line_total"`
}

// CreateInvoiceRequest is the body of POST /api/invoices. Amounts may be
// JSON numbers or numeric strings.
type CreateInvoiceRequest struct {
	InvoiceNo    string            `json:"invoice_no" validate:"max=64"`
	Date         string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CustomerName string            `json:"customer_name" validate:"max=200"`
	Subtotal     *Amount           `json:"subtotal"`
	Tax          *Amount           `json:"tax"`
	Total        *Amount           `json:"total"`
	Notes        string            `json:"notes" validate:"max=2000"`
	Items        []LineItemRequest `json:"items" validate:"dive"`
}

// ToInvoice builds the domain invoice. A missing date means today and a
// missing total falls back to the subtotal, then zero.
func (req CreateInvoiceRequest) ToInvoice() (core.Invoice, error) {
	date := core.Today()
	if strings.TrimSpace(req.Date) != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			return core.Invoice{}, err
		}
		date = d
	}

	inv := core.Invoice{
		InvoiceNo:    strings.TrimSpace(req.InvoiceNo),
		Date:         date,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Subtotal:     valueOr(req.Subtotal.value(), decimal.Zero),
		Tax:          valueOr(req.Tax.value(), decimal.Zero),
		Notes:        req.Notes,
		Items:        make([]core.LineItem, 0, len(req.Items)),
	}
	inv.Total = valueOr(req.Total.value(), inv.Subtotal)

	for _, it := range req.Items {
		inv.Items = append(inv.Items, core.LineItem{
			Description: strings.TrimSpace(it.Description),
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice.Decimal,
			Discount:    it.Discount.value(),
			LineTotal:   it.LineTotal.Decimal,
		})
	}
	return inv, nil
}

// CreateTransactionRequest is the body of POST /api/transactions.
type CreateTransactionRequest struct {
	Type      string  `json:"type" validate:"required,oneof=income expense"`
	Category  string  `json:"category" validate:"max=100"`
	Amount    *Amount `json:"amount" validate:"required"`
	Date      string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference string  `json:"reference" validate:"max=64"`
	Notes     string  `json:"notes" validate:"max=2000"`
}

func (req CreateTransactionRequest) ToTransaction() (core.Transaction, error) {
	if req.Amount.IsZero() {
		return core.Transaction{}, core.NewError("zero amount").
			WithHint("amount required").
			Mark(core.ErrValidation)
	}
	t := core.Transaction{
		Type:      core.TransactionType(req.Type),
		Category:  strings.TrimSpace(req.Category),
		Amount:    req.Amount.Decimal,
		Reference: strings.TrimSpace(req.Reference),
		Notes:     req.Notes,
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		t.Date = d
	}
	return t, nil
}

// ResetRequest is the body of POST /api/reset.
type ResetRequest struct {
	Confirm string `json:"confirm"`
	Secret  string `json:"secret"`
}

func valueOr(d *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if d == nil {
		return fallback
	}
	return *d
}

// decodeJSON reads a size-capped JSON body into dst and validates it.
// Every failure is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewError("empty request body").
				WithHint("request body must be a JSON object").
				Mark(core.ErrValidation)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewError("request body too large").
				WithHintf("request body must be at most %d bytes", maxBodyBytes).
				Mark(core.ErrValidation)
		}
		return core.WithError(err).
			WithMessage("decode request body").
			WithHint("request body is not valid JSON").
			Mark(core.ErrValidation)
	}
	return validateRequest(dst)
}

// validateRequest runs the struct's validate tags and turns each failed
// field into a client hint.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	b := core.WithError(err).WithMessage("request validation failed")
	var validateErrs validator.ValidationErrors
	if errors.As(err, &validateErrs) {
		for _, fe := range validateErrs {
			b = b.WithHint(fieldHint(fe))
		}
	} else {
		b = b.WithHint("Request validation failed")
	}
	return b.Mark(core.ErrValidation)
}

func fieldHint(fe validator.FieldError) string {
	field := jsonFieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " required"
	case "max":
		return fmt.Sprintf("%s too long (max %s characters)", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be %s", field, strings.ReplaceAll(fe.Param(), " ", " or "))
	case "datetime":
		return field + " must be formatted as YYYY-MM-DD"
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// jsonFieldPath turns "CreateInvoiceRequest.Items[0].Description" into
// "items[0].description".
func jsonFieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseDateRange reads the optional from/to query parameters.
func parseDateRange(q url.Values) (from, to core.Date, err error) {
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		return core.Date{}, core.Date{}, core.NewError("inverted date range").
			WithHint("from must not be after to").
			Mark(core.ErrValidation)
	}
	return from, to, nil
}

// ParseInvoiceFilter reads q, from and to.
func ParseInvoiceFilter(q url.Values) (core.InvoiceFilter, error) {
	from, to, err := parseDateRange(q)
	if err != nil {
		return core.InvoiceFilter{}, err
	}
	return core.InvoiceFilter{
		Query: sanitizeInput(q.Get("q")),
		From:  from,
		To:    to,
	}, nil
}

// ParseTransactionFilter reads type, reference, from and to.
func ParseTransactionFilter(q url.Values) (core.TransactionFilter, error) {
	from, to, err := parseDateRange(q)
	if err != nil {
		return core.TransactionFilter{}, err
	}
	return core.TransactionFilter{
		Type:      core.TransactionType(strings.TrimSpace(q.Get("type"))),
		Reference: sanitizeInput(q.Get("reference")),
		From:      from,
		To:        to,
	}, nil
}

// pathID reads the {id} wildcard. Anything that is not a positive integer
// cannot name a row, so it is reported as not found.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.Wrapf(core.ErrNotFound, "invalid id %q", raw)
	}
	return id, nil
}
