package log

// Attribute keys shared by every component.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldError       = "error"
	FieldErrorCode   = "error_code"
	FieldOperation   = "operation"
	FieldInvoiceID   = "invoice_id"
	FieldInvoiceNo   = "invoice_no"
	FieldAttempt     = "attempt"
	FieldMaxAttempts = "max_attempts"
)

const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentInvoice = "invoice"
	ComponentStorage = "storage"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentAdmin   = "admin"
)

const (
	OpCreate   = "create"
	OpRead     = "read"
	OpDelete   = "delete"
	OpList     = "list"
	OpAllocate = "allocate"
	OpSummary  = "summary"
	OpExport   = "export"
	OpReset    = "reset"
)

// Fields is an ordered list of key/value pairs ready for slog.
type Fields []any

func NewFields() Fields { return make(Fields, 0, 8) }

func (f Fields) add(key string, value any) Fields { return append(f, key, value) }

func (f Fields) WithOperation(op string) Fields { return f.add(FieldOperation, op) }

// WithError adds err's message; a nil error adds nothing.
func (f Fields) WithError(err error) Fields {
	if err == nil {
		return f
	}
	return f.add(FieldError, err.Error())
}

// WithInvoice identifies an invoice. A zero id is left out so the helper
// also works before the row exists.
func (f Fields) WithInvoice(id int64, invoiceNo string) Fields {
	if id != 0 {
		f = f.add(FieldInvoiceID, id)
	}
	return f.add(FieldInvoiceNo, invoiceNo)
}

func (f Fields) WithAttempt(attempt, max int) Fields {
	return f.add(FieldAttempt, attempt).add(FieldMaxAttempts, max)
}

func (f Fields) WithHTTPRequest(method, path string) Fields {
	return f.add(FieldMethod, method).add(FieldPath, path)
}

func (f Fields) ToSlice() []any { return []any(f) }
