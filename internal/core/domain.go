package core

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format of calendar days.
const DateLayout = "2006-01-02"

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Ledger entries derived from invoices always use this category.
const SalesCategory = "sales"

type (
	TransactionType string

	Date struct {
		time.Time
	}

	LineItem struct {
		ID          int64            `json:"id" db:"id"`
		InvoiceID   int64            `json:"invoice_id" db:"invoice_id"`
		Description string           `json:"description" db:"description"`
		Qty         int64            `json:"qty" db:"qty"`
		UnitPrice   decimal.Decimal  `json:"unit_price" db:"unit_price"`
		Discount    *decimal.Decimal `json:"discount,omitempty" db:"discount"`
		LineTotal   decimal.Decimal  `json:"line_total" db:"line_total"`
	}

	Invoice struct {
		ID           int64           `json:"id" db:"id"`
		InvoiceNo    string          `json:"invoice_no" db:"invoice_no"`
		Date         Date            `json:"date" db:"date"`
		CustomerName string          `json:"customer_name" db:"customer_name"`
		Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
		Tax          decimal.Decimal `json:"tax" db:"tax"`
		Total        decimal.Decimal `json:"total" db:"total"`
		Notes        string          `json:"notes" db:"notes"`
		CreatedAt    time.Time       `json:"created_at" db:"created_at"`
		Items        []LineItem      `json:"items,omitempty" db:"-"`
	}

	Transaction struct {
		ID         int64           `json:"id" db:"id"`
		Type       TransactionType `json:"type" db:"type"`
		Category   string          `json:"category" db:"category"`
		Amount     decimal.Decimal `json:"amount" db:"amount"`
		Date       Date            `json:"date" db:"date"`
		Reference  string          `json:"reference" db:"reference"`
		Notes      string          `json:"notes" db:"notes"`
		CreatedAt  time.Time       `json:"created_at" db:"created_at"`
		MirroredAt *time.Time      `json:"mirrored_at,omitempty" db:"mirrored_at"`
	}

	// Summary is income minus expense over an inclusive date range.
	Summary struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Profit  decimal.Decimal `json:"profit"`
	}

	// InvoiceFilter narrows invoice listings. Zero values mean "no filter".
	InvoiceFilter struct {
		Query string
		From  Date
		To    Date
	}

	TransactionFilter struct {
		Type      TransactionType
		Reference string
		From      Date
		To        Date
	}
)

func init() {
	// Amounts travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day in UTC.
func Today() Date {
	return DateOf(time.Now())
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewError(fmt.Sprintf("invalid date %q", s)).
			WithHint("date must be formatted as YYYY-MM-DD").
			Mark(ErrValidation)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return NewError("date cannot be zero").
			WithHint("date is required").
			Mark(ErrValidation)
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan reads dates stored as TEXT or returned by the driver as time.Time.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = Date{Time: t}
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return NewError("empty item description").
			WithHint("each item needs a description").
			Mark(ErrValidation)
	}
	if len(li.Description) > 500 {
		return NewError("item description too long").
			WithHint("item description too long (max 500 characters)").
			Mark(ErrValidation)
	}
	if li.Qty < 0 {
		return NewError("negative item quantity").
			WithHint("item qty cannot be negative").
			Mark(ErrValidation)
	}
	if err := ValidateAmount("unit_price", li.UnitPrice); err != nil {
		return err
	}
	if li.Discount != nil {
		if err := ValidateAmount("discount", *li.Discount); err != nil {
			return err
		}
	}
	return ValidateAmount("line_total", li.LineTotal)
}

// Validate checks the header and every item. Monetary fields are taken as
// supplied by the caller and never recomputed.
func (inv Invoice) Validate() error {
	if err := inv.Date.Validate(); err != nil {
		return err
	}
	if len(inv.InvoiceNo) > 64 {
		return NewError("invoice number too long").
			WithHint("invoice_no too long (max 64 characters)").
			Mark(ErrValidation)
	}
	if len(inv.CustomerName) > 200 {
		return NewError("customer name too long").
			WithHint("customer_name too long (max 200 characters)").
			Mark(ErrValidation)
	}
	if err := ValidateAmount("subtotal", inv.Subtotal); err != nil {
		return err
	}
	if err := ValidateAmount("tax", inv.Tax); err != nil {
		return err
	}
	if err := ValidateAmount("total", inv.Total); err != nil {
		return err
	}
	for i, item := range inv.Items {
		if err := item.Validate(); err != nil {
			return WithError(err).WithMessage(fmt.Sprintf("item %d", i+1)).Mark(ErrValidation)
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return NewError(fmt.Sprintf("invalid transaction type %q", t.Type)).
			WithHint("type must be income or expense").
			Mark(ErrValidation)
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Category) > 100 {
		return NewError("category too long").
			WithHint("category too long (max 100 characters)").
			Mark(ErrValidation)
	}
	return ValidateAmount("amount", t.Amount)
}

// LedgerEntryFor derives the income entry recorded alongside an invoice.
// Invoices with a zero or negative total get none.
func LedgerEntryFor(inv Invoice) *Transaction {
	if !inv.Total.IsPositive() {
		return nil
	}
	return &Transaction{
		Type:      Income,
		Category:  SalesCategory,
		Amount:    inv.Total,
		Date:      inv.Date,
		Reference: inv.InvoiceNo,
		Notes:     "Invoice #" + inv.InvoiceNo,
	}
}
