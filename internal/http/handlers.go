package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth is the liveness probe; it touches no dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Field("status", "ok").
		Field("timestamp", time.Now().Format(time.RFC3339)).
		Field("uptime", time.Since(s.appMetrics.uptime).String()).
		Write(w)
}

// handleReady reports 503 until the database answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{"database": "ok"}
	ready := true
	if s.pinger == nil {
		checks["database"], ready = "not_configured", false
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["database"], ready = "failed: "+err.Error(), false
	}
	if s.summaries != nil {
		checks["summary_cache"] = map[string]any{"status": "ok", "entries": s.summaries.Stats().Size}
	}
	if s.rateLimiter != nil {
		checks["rate_limiter"] = map[string]any{"status": "ok", "active_clients": s.rateLimiter.ActiveClients()}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	NewJSONResponse().
		Status(code).
		Field("status", status).
		Field("timestamp", time.Now().Format(time.RFC3339)).
		Field("checks", checks).
		Write(w)
}

// promWriter writes the Prometheus text exposition format.
type promWriter struct{ w io.Writer }

func (p promWriter) metric(name, kind, help string, samples ...sample) {
	fmt.Fprintf(p.w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	for _, s := range samples {
		fmt.Fprintf(p.w, "%s%s %v\n", name, s.labels, s.value)
	}
	fmt.Fprintln(p.w)
}

type sample struct {
	labels string
	value  any
}

func value(v any) sample { return sample{value: v} }

// handleMetrics exposes request, invoice, cache and security counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	p := promWriter{w}

	req := s.traceMiddleware.GetMetrics()
	p.metric("http_requests_total", "counter", "Total number of HTTP requests", value(req.TotalRequests))
	p.metric("http_errors_total", "counter", "HTTP responses with an error status",
		sample{`{class="4xx"}`, req.ClientErrors},
		sample{`{class="5xx"}`, req.ServerErrors})
	p.metric("http_response_time_ms_avg", "gauge", "Average response time in milliseconds",
		value(fmt.Sprintf("%.2f", req.AverageResponseTime.Seconds()*1000)))

	p.metric("invoices_created_total", "counter", "Invoices committed",
		value(atomic.LoadInt64(&s.appMetrics.invoicesCreated)))
	p.metric("invoice_create_failures_total", "counter", "Invoice creations that did not commit",
		value(atomic.LoadInt64(&s.appMetrics.invoiceFailures)))
	p.metric("transactions_created_total", "counter", "Manual ledger entries created",
		value(atomic.LoadInt64(&s.appMetrics.transactionsCreated)))

	if s.summaries != nil {
		st := s.summaries.Stats()
		p.metric("summary_cache_hits_total", "counter", "Summary cache hits", value(st.Hits))
		p.metric("summary_cache_misses_total", "counter", "Summary cache misses", value(st.Misses))
		p.metric("summary_cache_entries", "gauge", "Current summary cache entries", value(st.Size))
	}
	if s.rateLimiter != nil {
		rl := s.rateLimiter.GetMetrics()
		p.metric("rate_limit_hits_total", "counter", "Write requests rejected by the rate limiter", value(rl.TotalHits))
		p.metric("active_rate_limit_clients", "gauge", "Clients with a live rate limit bucket", value(rl.ClientCount))
	}

	sec := s.detector.GetMetrics()
	p.metric("suspicious_requests_total", "counter", "Requests matching a probe signature", value(sec.SuspiciousRequests))
	p.metric("client_ip_parse_failures_total", "counter", "Peer or forwarded addresses that did not parse", value(sec.InvalidIPAttempts))
	p.metric("uptime_seconds", "gauge", "Application uptime in seconds",
		value(int64(time.Since(s.appMetrics.uptime).Seconds())))
}

// handleAPINotFound answers unknown /api/ paths with the JSON envelope
// instead of the mux's plain text 404.
func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError().Write(w)
}
