package http

import (
	"net/http"
	"sync/atomic"

	"billing/internal/log"
)

// handleCreateInvoice runs the numbering transaction and returns the stored
// invoice with its items.
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	inv, err := req.ToInvoice()
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}

	created, err := s.invoices.CreateInvoice(r.Context(), inv)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.invoiceFailures, 1)
		writeError(w, r, err, log.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.invoicesCreated, 1)

	Success().
		Field("invoice", created).
		Field("id", created.ID).
		Field("invoice_no", created.InvoiceNo).
		Write(w)
}

// handleListInvoices returns headers only, newest first.
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := ParseInvoiceFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	invoices, err := s.invoices.ListInvoices(r.Context(), f)
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	for i := range invoices {
		invoices[i].Items = nil
	}
	NewJSONResponse().Payload(nonNil(invoices)).Write(w)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	inv, err := s.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Payload(inv).Write(w)
}

// handleDeleteInvoice removes the invoice, its items and its sales entry.
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	if err := s.invoices.DeleteInvoice(r.Context(), id); err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	Success().Write(w)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
