package http

import (
	"bytes"
	"net/http"
	"time"

	"billing/internal/core"
	"billing/internal/log"
	"billing/internal/report"
)

// The CSV is rendered into a buffer first so that a failure halfway
// through still produces a proper error response.

func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := ParseInvoiceFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	invoices, err := s.invoices.ListInvoices(r.Context(), f)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteInvoicesCSV(&buf, invoices); err != nil {
		writeError(w, r, core.WithError(err).Mark(core.ErrPersistence), log.OpExport)
		return
	}
	writeCSV(w, attachmentName("invoices", time.Now()), buf.Bytes())
}

func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}
	txns, err := s.ledger.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, err, log.OpExport)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteTransactionsCSV(&buf, txns); err != nil {
		writeError(w, r, core.WithError(err).Mark(core.ErrPersistence), log.OpExport)
		return
	}
	writeCSV(w, attachmentName("transactions", time.Now()), buf.Bytes())
}

func writeCSV(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
