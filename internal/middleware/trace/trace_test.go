package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAcceptRequestID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc-123", "abc-123"},
		{"  padded  ", "padded"},
		{"", ""},
		{"   ", ""},
		{"has space", ""},
		{"ctl\x01", ""},
		{"caffè", ""},
		{strings.Repeat("x", maxRequestIDLen), strings.Repeat("x", maxRequestIDLen)},
		{strings.Repeat("x", maxRequestIDLen+1), ""},
	}
	for _, tt := range tests {
		if got := acceptRequestID(tt.in); got != tt.want {
			t.Errorf("acceptRequestID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	var inHandler string
	h := NewMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	if !strings.HasPrefix(inHandler, "req_") || len(inHandler) != len("req_")+16 {
		t.Fatalf("generated id = %q", inHandler)
	}
	if rr.Header().Get(RequestIDHeader) != inHandler {
		t.Errorf("response header %q differs from context id %q", rr.Header().Get(RequestIDHeader), inHandler)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if inHandler != "upstream-7" {
		t.Errorf("caller id not kept, got %q", inHandler)
	}

	if GetRequestID(context.Background()) != "" {
		t.Error("bare context should carry no id")
	}
}

func TestMiddleware_Counters(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "203.0.113.5" })
	tick := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		tick = tick.Add(5 * time.Millisecond)
		return tick
	}

	handlers := []http.HandlerFunc{
		func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{}")) },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnprocessableEntity) },
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.WriteHeader(http.StatusInternalServerError) // ignored
		},
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
		func(w http.ResponseWriter, r *http.Request) {},
	}
	for _, fn := range handlers {
		m.Middleware(fn).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices", nil))
	}

	got := m.GetMetrics()
	want := Metrics{TotalRequests: 6, ClientErrors: 2, ServerErrors: 1, AverageResponseTime: 5 * time.Millisecond}
	if got != want {
		t.Errorf("metrics = %+v, want %+v", got, want)
	}
}

func TestLevelFor(t *testing.T) {
	if levelFor(http.StatusOK) >= levelFor(http.StatusNotFound) || levelFor(http.StatusNotFound) >= levelFor(http.StatusBadGateway) {
		t.Error("levels should rise with status class")
	}
}
