// Package remote is the authenticated HTTP client for the backend API.
// GET responses are cached for a short freshness window and concurrent
// identical GETs share one request; any successful mutation clears the cache.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ferreteria/ordersync/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a GET response stays fresh.
const DefaultCacheTTL = 30 * time.Second

// CredentialSource supplies the bearer token. An empty token sends no header.
type CredentialSource interface {
	Token() string
}

// TokenFunc adapts a function to CredentialSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type cacheEntry struct {
	body    []byte
	fetched time.Time
}

// Client is an HTTP client for the backend API.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Credentials CredentialSource
	TTL         time.Duration
	Metrics     *metrics.Collector

	now      func() time.Time
	inflight singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
	// gen increments on every invalidation; a GET that started under an
	// older generation does not populate the cache.
	gen uint64
}

// New creates a client for baseURL.
func New(baseURL string, creds CredentialSource) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		Credentials: creds,
		TTL:         DefaultCacheTTL,
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
	}
}

// --- Requests ---

// Get fetches path into out, serving a fresh cached response when present.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	url := c.BaseURL + path

	if body, ok := c.cached(url); ok {
		c.Metrics.RecordCache("hit")
		return decode(body, out)
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	// Cancelling ctx only stops this caller waiting; the shared request continues.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(url, func() (any, error) {
		body, err := c.doRequest(shared, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.store(url, body, gen)
		return body, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.Metrics.RecordCache("shared")
		} else {
			c.Metrics.RecordCache("miss")
		}
		if res.Err != nil {
			return res.Err
		}
		return decode(res.Val.([]byte), out)
	case <-ctx.Done():
		return &APIError{Status: 0, Message: ctx.Err().Error(), Err: ctx.Err()}
	}
}

// Post sends body to path and decodes the response into out (may be nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.mutate(ctx, http.MethodPost, path, body, out)
}

// Patch sends a partial update.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.mutate(ctx, http.MethodPatch, path, body, out)
}

// Put sends a full replacement.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.mutate(ctx, http.MethodPut, path, body, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.mutate(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) mutate(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	respBody, err := c.doRequest(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	c.InvalidateCache()
	return decode(respBody, out)
}

// InvalidateCache drops every cached GET response.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.gen++
	c.mu.Unlock()
}

func (c *Client) cached(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[url]
	if !ok || c.clock().Sub(e.fetched) >= c.ttl() {
		return nil, false
	}
	return e.body, true
}

func (c *Client) store(url string, body []byte, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if c.cache == nil {
		c.cache = make(map[string]cacheEntry)
	}
	c.cache[url] = cacheEntry{body: body, fetched: c.clock()}
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Client) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultCacheTTL
	}
	return c.TTL
}

// doRequest performs one HTTP round trip. Non-JSON and 204 responses yield
// an empty body.
func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Credentials != nil {
		if token := c.Credentials.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Debug("remote: request failed", "method", method, "url", url, "err", err)
		return nil, &APIError{Status: 0, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: 0, Message: fmt.Sprintf("read response: %v", err), Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 {
		return nil, newHTTPError(resp.StatusCode, contentType, respBody)
	}
	if resp.StatusCode == http.StatusNoContent || !strings.Contains(contentType, "json") {
		return nil, nil
	}
	return respBody, nil
}

func decode(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
