package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"billing/internal/core"
	"billing/internal/log"
	"billing/internal/middleware/ratelimit"
	"billing/internal/middleware/security"
	"billing/internal/middleware/trace"
	"billing/internal/services"
)

// InvoiceService is the invoice side of the API.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, inv core.Invoice) (*core.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*core.Invoice, error)
	ListInvoices(ctx context.Context, f core.InvoiceFilter) ([]core.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
}

// LedgerService is the manual ledger and reporting side of the API.
type LedgerService interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (*core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	Summary(ctx context.Context, from, to core.Date) (core.Summary, error)
}

type AdminService interface {
	Reset(ctx context.Context, confirm, secret string) (services.ResetResult, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators a Server routes to. Summaries and
// Logger are optional.
type Dependencies struct {
	Invoices  InvoiceService
	Ledger    LedgerService
	Admin     AdminService
	Pinger    Pinger
	Summaries *services.SummaryCache
	Logger    *log.Logger

	// RateLimit caps write requests per client per minute. Zero disables
	// limiting.
	RateLimit int
	// TrustedProxies are CIDRs, beyond the private ranges, whose
	// X-Forwarded-For is believed.
	TrustedProxies []string
}

// Application metrics
type appMetrics struct {
	invoicesCreated     int64
	invoiceFailures     int64
	transactionsCreated int64
	uptime              time.Time
}

type Server struct {
	http.Server
	invoices  InvoiceService
	ledger    LedgerService
	admin     AdminService
	pinger    Pinger
	summaries *services.SummaryCache

	rateLimiter     *ratelimit.Limiter
	detector        *security.Detector
	traceMiddleware *trace.Middleware
	appMetrics      *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		invoices:   deps.Invoices,
		ledger:     deps.Ledger,
		admin:      deps.Admin,
		pinger:     deps.Pinger,
		summaries:  deps.Summaries,
		detector:   security.NewDetector(),
		appMetrics: &appMetrics{uptime: time.Now()},
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.Trust(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(s.detector.ExtractClientIP)

	write := func(h http.HandlerFunc) http.Handler { return h }
	if deps.RateLimit > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimit})
		limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, handleRateLimited)
		write = func(h http.HandlerFunc) http.Handler { return limit(h) }
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/invoices", write(s.handleCreateInvoice))
	mux.HandleFunc("GET /api/invoices", s.handleListInvoices)
	mux.HandleFunc("GET /api/invoices/{id}", s.handleGetInvoice)
	mux.Handle("DELETE /api/invoices/{id}", write(s.handleDeleteInvoice))

	mux.Handle("POST /api/transactions", write(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)

	mux.HandleFunc("GET /api/reports/summary", s.handleSummary)
	mux.HandleFunc("GET /api/export/invoices/csv", s.handleExportInvoices)
	mux.HandleFunc("GET /api/export/transactions/csv", s.handleExportTransactions)

	mux.Handle("POST /api/reset", write(s.handleReset))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("/api/", s.handleAPINotFound)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.GetRequestID)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.").Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
