package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultProbeURL answers a DNS-over-HTTPS query; any 2xx means the
	// internet is reachable.
	DefaultProbeURL = "https://dns.google/resolve?name=google.com&type=A"
	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 5 * time.Second
)

// Prober performs one active connectivity check. Implementations must not
// block past their own timeout.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// HTTPProber probes by issuing a GET to URL.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

// NewHTTPProber returns a prober for url with the given timeout. Zero values
// fall back to the defaults.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if url == "" {
		url = DefaultProbeURL
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{URL: url, Timeout: timeout, HTTP: &http.Client{}}
}

// Probe reports true only for a 2xx answer within the timeout. Every error,
// including the timeout, is reported as offline.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		slog.Warn("connectivity: build probe", "url", p.URL, "err", err)
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("connectivity: probe failed", "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
