// Package gateway wraps all HTTP traffic to the seed-generation web service
// behind a single rate limit. The service allows one request every 500ms per
// API key; create-seed calls for multiworld seeds are spaced much further
// apart while generation slots are scarce.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
)

// DefaultSpacing is the minimum gap between consecutive requests.
const DefaultSpacing = 500 * time.Millisecond

// Config configures the gateway.
type Config struct {
	// HTTPClient is the underlying client (default: http.DefaultClient).
	HTTPClient *http.Client

	// Spacing is the minimum gap between requests (default: DefaultSpacing).
	Spacing time.Duration
}

// Client serializes outbound requests to one external host, holding the
// earliest next allowed instant behind a mutex. Every call sleeps until that
// instant, issues the request, then pushes the instant forward. Network and
// HTTP errors propagate unchanged; the gateway never retries.
type Client struct {
	hc      *http.Client
	spacing time.Duration

	mu   sync.Mutex
	next time.Time
}

// New creates a gateway client, applying defaults for unset fields.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Spacing == 0 {
		cfg.Spacing = DefaultSpacing
	}
	return &Client{hc: cfg.HTTPClient, spacing: cfg.Spacing}
}

// Get issues a rate-limited GET.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, query, nil, 0)
}

// Head issues a rate-limited HEAD.
func (c *Client) Head(ctx context.Context, rawURL string, query url.Values) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, query, nil, 0)
}

// Post issues a rate-limited POST with an optional JSON body. A nonzero
// rateLimit overrides the default spacing for the *next* request, used to
// space out create-seed calls while multiworld slots are scarce.
func (c *Client) Post(ctx context.Context, rawURL string, query url.Values, body any, rateLimit time.Duration) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, query, body, rateLimit)
}

func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body any, rateLimit time.Duration) (*http.Response, error) {
	if rateLimit == 0 {
		rateLimit = c.spacing
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	if len(query) > 0 {
		sep := "?"
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// The mutex is held through the request so requests stay strictly
	// serialized; the service rejects concurrent calls on one key.
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := time.Until(c.next); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	resp, err := c.hc.Do(req)
	c.next = time.Now().Add(rateLimit)
	return resp, err
}

// ErrorForStatus returns an *racebot.HTTPError for non-2xx responses,
// including as much of the body as it can read for diagnostics. The response
// body is consumed and closed on error.
func ErrorForStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &racebot.HTTPError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       string(bytes.TrimSpace(body)),
	}
}

// DecodeJSON checks the response status, then decodes the body into v. On
// decode failure the error includes the raw text: the service sometimes
// responds with HTML where JSON is expected.
func DecodeJSON(resp *http.Response, v any) error {
	if err := ErrorForStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response %q: %w", truncate(string(body), 256), err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
