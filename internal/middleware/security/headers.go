// Package security sets protective response headers and flags probing
// traffic.
package security

import (
	"net/http"
	"strconv"
)

// HeadersConfig selects the response headers. Empty strings are skipped.
type HeadersConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ContentTypeOptions    string
	ReferrerPolicy        string
	ResourcePolicy        string
	CacheControl          string

	// HSTSMaxAge is sent only on TLS connections. Zero disables it.
	HSTSMaxAge     int
	HSTSSubdomains bool
}

// DefaultHeadersConfig suits a JSON API that never renders documents and
// returns private billing data.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "no-referrer",
		ResourcePolicy:        "same-origin",
		CacheControl:          "no-store",
		HSTSMaxAge:            365 * 24 * 60 * 60,
		HSTSSubdomains:        true,
	}
}

// HeadersMiddleware stamps a precomputed header set on every response.
type HeadersMiddleware struct {
	fixed http.Header
	hsts  string
}

func NewHeadersMiddleware(cfg HeadersConfig) *HeadersMiddleware {
	fixed := make(http.Header)
	for name, value := range map[string]string{
		"Content-Security-Policy":      cfg.ContentSecurityPolicy,
		"X-Frame-Options":              cfg.FrameOptions,
		"X-Content-Type-Options":       cfg.ContentTypeOptions,
		"Referrer-Policy":              cfg.ReferrerPolicy,
		"Cross-Origin-Resource-Policy": cfg.ResourcePolicy,
		"Cache-Control":                cfg.CacheControl,
	} {
		if value != "" {
			fixed.Set(name, value)
		}
	}

	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return &HeadersMiddleware{fixed: fixed, hsts: hsts}
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for name, values := range h.fixed {
			dst[name] = append([]string(nil), values...)
		}
		if h.hsts != "" && r.TLS != nil {
			dst.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}
