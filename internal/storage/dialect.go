package storage

// Dialect captures what differs between the SQL engines sharing SQLRepository.
type Dialect interface {
	// Name is also the golang-migrate database name and migrations subdirectory.
	Name() string
	// IsDuplicateInvoiceNo reports whether err is a unique violation on
	// invoices.invoice_no.
	IsDuplicateInvoiceNo(err error) bool
	// CaseInsensitiveLike is the operator used by invoice search.
	CaseInsensitiveLike() string
	// ExactSum reports whether SUM over amount columns is computed without
	// floating point.
	ExactSum() bool
}
