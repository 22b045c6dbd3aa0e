package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "private, max-age=60")
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	for name, value := range map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
	} {
		if got := rr.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if got := rr.Header().Get("Cache-Control"); got != "private, max-age=60" {
		t.Errorf("handler should be able to override Cache-Control, got %q", got)
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestHeadersMiddleware_EmptyValuesSkipped(t *testing.T) {
	h := NewHeadersMiddleware(HeadersConfig{FrameOptions: "SAMEORIGIN"}).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if len(rr.Header()) != 1 || rr.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Errorf("headers = %v", rr.Header())
	}
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		xff    string
		rule   string
	}{
		{"invoice create", http.MethodPost, "/api/invoices", "curl/8.4.0", "", ""},
		{"summary query", http.MethodGet, "/api/reports/summary?from=2024-01-01&to=2024-01-31", "", "", ""},
		{"path traversal", http.MethodGet, "/api/../../etc/passwd", "", "", "path"},
		{"encoded sql in query", http.MethodGet, "/api/invoices?q=1%20UNION%20SELECT", "", "", "query"},
		{"scanner agent", http.MethodGet, "/api/invoices", "sqlmap/1.7", "", "scanner"},
		{"trace method", "TRACE", "/", "", "", "method"},
		{"long url", http.MethodGet, "/api/invoices?q=" + strings.Repeat("a", 2100), "", "", "long_url"},
		{"short proxy chain", http.MethodGet, "/", "", "1.1.1.1, 2.2.2.2", ""},
		{"long proxy chain", http.MethodGet, "/", "", strings.Repeat("1.1.1.1, ", 6) + "1.1.1.1", "forwarded_chain"},
	}

	d := NewDetector()
	flagged := 0
	for _, tt := range tests {
		if tt.rule != "" {
			flagged++
		}
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				req.Header.Set("User-Agent", tt.agent)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := d.Inspect(req); got != tt.rule {
				t.Errorf("Inspect = %q, want %q", got, tt.rule)
			}
		})
	}
	if got := d.GetMetrics().SuspiciousRequests; got != int64(flagged) {
		t.Errorf("SuspiciousRequests = %d, want %d", got, flagged)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct public peer", "203.0.113.9:5000", "", "", "203.0.113.9"},
		{"untrusted peer ignores xff", "203.0.113.9:5000", "198.51.100.1", "", "203.0.113.9"},
		{"trusted proxy xff", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:5000", "", "198.51.100.7", "198.51.100.7"},
		{"bad xff falls through to real ip", "172.20.0.4:80", "garbage", "198.51.100.8", "198.51.100.8"},
		{"trusted proxy nothing usable", "192.168.1.1:80", "not-an-ip", "", "192.168.1.1"},
		{"ipv6 loopback proxy", "[::1]:8080", "2001:db8::5", "", "2001:db8::5"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
		{"unparseable peer", "pipe", "198.51.100.1", "", "pipe"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := d.ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
	if got := d.GetMetrics().InvalidIPAttempts; got != 3 {
		t.Errorf("InvalidIPAttempts = %d, want 3", got)
	}
}

func TestTrust(t *testing.T) {
	d := NewDetector()
	if err := d.Trust("not-a-cidr"); err == nil {
		t.Error("expected error for bad CIDR")
	}
	if err := d.Trust(" 203.0.113.0/24 "); err != nil {
		t.Fatalf("Trust: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(req); got != "198.51.100.1" {
		t.Errorf("ExtractClientIP = %q", got)
	}
}
