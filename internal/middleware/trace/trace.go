// Package trace assigns request IDs and keeps request counters for the
// metrics endpoint.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type ctxKey struct{}

// RequestIDHeader is honoured on input and echoed on every response.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// Middleware tags each request with an ID and records its outcome.
type Middleware struct {
	clientIP func(*http.Request) string
	now      func() time.Time

	requests atomic.Int64
	elapsed  atomic.Int64    // nanoseconds
	classes  [6]atomic.Int64 // index is status/100
}

// Metrics is a snapshot of the counters.
type Metrics struct {
	TotalRequests       int64
	ClientErrors        int64
	ServerErrors        int64
	AverageResponseTime time.Duration
}

// NewMiddleware returns a tracer that resolves client addresses with
// clientIP, which may be nil.
func NewMiddleware(clientIP func(*http.Request) string) *Middleware {
	return &Middleware{clientIP: clientIP, now: time.Now}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := m.now()

		id := acceptRequestID(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := WithRequestID(r.Context(), id)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))

		status := sw.status()
		took := m.now().Sub(started)
		m.observe(status, took)

		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"duration_ms", took.Milliseconds(),
		}
		if m.clientIP != nil {
			attrs = append(attrs, "client_ip", m.clientIP(r))
		}
		slog.Log(ctx, levelFor(status), "HTTP request completed", attrs...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func (m *Middleware) observe(status int, took time.Duration) {
	m.requests.Add(1)
	m.elapsed.Add(int64(took))
	if class := status / 100; class > 0 && class < len(m.classes) {
		m.classes[class].Add(1)
	}
}

// GetMetrics returns the counters collected so far.
func (m *Middleware) GetMetrics() Metrics {
	out := Metrics{
		TotalRequests: m.requests.Load(),
		ClientErrors:  m.classes[4].Load(),
		ServerErrors:  m.classes[5].Load(),
	}
	if out.TotalRequests > 0 {
		out.AverageResponseTime = time.Duration(m.elapsed.Load() / out.TotalRequests)
	}
	return out
}

// acceptRequestID returns the caller's ID when it is short printable ASCII,
// and "" otherwise.
func acceptRequestID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return ""
		}
	}
	return id
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "req_" + hex.EncodeToString(b[:])
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// GetRequestID returns the ID stored by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// statusWriter remembers the first status sent downstream.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
