package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// DetectionMetrics counts what the detector has seen.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// rule names a probe signature; match gets the lowercased request parts.
type rule struct {
	name  string
	match func(p probe) bool
}

type probe struct {
	method, path, query, agent string
	urlLen, forwardedHops      int
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"etc/passwd", "cmd.exe", "<script", "javascript:", "union select", "eval(",
	}
	// curl and HTTP libraries are normal API clients; only scanners count.
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

	rules = []rule{
		{"path", func(p probe) bool { return containsAny(p.path, probeFragments) }},
		{"query", func(p probe) bool { return containsAny(p.query, probeFragments) }},
		{"scanner", func(p probe) bool { return containsAny(p.agent, scannerAgents) }},
		{"method", func(p probe) bool {
			switch p.method {
			case "TRACE", "TRACK", "DEBUG", "CONNECT":
				return true
			}
			return false
		}},
		{"long_url", func(p probe) bool { return p.urlLen > 2048 }},
		{"forwarded_chain", func(p probe) bool { return p.forwardedHops > 6 }},
	}
)

// Detector flags probing traffic and resolves the client address behind
// trusted proxies.
type Detector struct {
	suspicious atomic.Int64
	invalidIPs atomic.Int64

	mu      sync.RWMutex
	trusted []netip.Prefix
}

// NewDetector trusts loopback and private ranges as proxies.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		d.trusted = append(d.trusted, netip.MustParsePrefix(cidr))
	}
	return d
}

// Trust adds a proxy network given in CIDR form.
func (d *Detector) Trust(cidr string) error {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return fmt.Errorf("trusted proxy %q: %w", cidr, err)
	}
	d.mu.Lock()
	d.trusted = append(d.trusted, prefix.Masked())
	d.mu.Unlock()
	return nil
}

func newProbe(r *http.Request) probe {
	query := r.URL.RawQuery
	if q, err := url.QueryUnescape(query); err == nil {
		query = q
	}
	hops := 0
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops = strings.Count(xff, ",") + 1
	}
	return probe{
		method:        r.Method,
		path:          strings.ToLower(r.URL.Path),
		query:         strings.ToLower(query),
		agent:         strings.ToLower(r.Header.Get("User-Agent")),
		urlLen:        len(r.URL.String()),
		forwardedHops: hops,
	}
}

// Inspect returns the name of the first rule r trips, or "".
func (d *Detector) Inspect(r *http.Request) string {
	p := newProbe(r)
	for _, rl := range rules {
		if rl.match(p) {
			d.suspicious.Add(1)
			return rl.name
		}
	}
	return ""
}

// DetectSuspiciousRequest reports whether r looks like a probe.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	return d.Inspect(r) != ""
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// ExtractClientIP uses X-Forwarded-For, then X-Real-IP, but only when the
// direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		d.invalidIPs.Add(1)
		return host
	}
	if !d.trusts(peer) {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
		d.invalidIPs.Add(1)
	}
	return host
}

func (d *Detector) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIPs.Load(),
	}
}

// Middleware logs suspicious requests and lets them through; blocking is
// the rate limiter's job.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"rule", reason,
				"client_ip", d.ExtractClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
