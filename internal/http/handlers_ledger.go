package http

import (
	"net/http"
	"sync/atomic"

	"billing/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	t, err := req.ToTransaction()
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)

	Success().
		Field("id", created.ID).
		Field("transaction", created).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	txns, err := s.ledger.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Payload(nonNil(txns)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Payload(t).Write(w)
}

// handleSummary totals income and expense over the optional from/to range.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err, log.OpSummary)
		return
	}
	sum, err := s.ledger.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err, log.OpSummary)
		return
	}
	NewJSONResponse().Payload(sum).Write(w)
}
