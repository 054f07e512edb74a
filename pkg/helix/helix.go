// Package helix provides a client for a HelixDB-style backing store: a
// combined graph and vector database that exposes named queries as JSON
// endpoints over HTTP.
//
// Every named query is invoked as POST {base}/{queryName} with a JSON
// parameter object and returns a JSON document. The client retries
// transport-level and server-side failures with exponential backoff, but
// never retries logical misses (the store answered, the data simply isn't
// there). Logical misses are surfaced as [ErrNotFound] so callers can
// branch on them with errors.Is.
package helix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
)

const (
	defaultHost = "localhost"
	defaultPort = 6969

	defaultMaxRetries = 3
	retryInitialDelay = 100 * time.Millisecond
	retryMaxDelay     = 10 * time.Second
)

// ErrNotFound indicates the store answered but the requested record does
// not exist. It is never the result of a transport failure.
var ErrNotFound = errors.New("helix: not found")

// QueryError describes a failed named-query invocation.
type QueryError struct {
	Query  string // query name
	Status int    // HTTP status, 0 for transport errors
	Body   string // response body, truncated
	Err    error  // underlying error, if any
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helix: query %s: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("helix: query %s: status %d: %s", e.Query, e.Status, e.Body)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Client invokes named queries against a single store endpoint.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	instance   string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithInstance scopes all queries to a named store instance.
// The instance is sent as the X-Helix-Instance header.
func WithInstance(name string) Option {
	return func(c *Client) { c.instance = name }
}

// WithMaxRetries overrides the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the store at host:port.
// Zero values fall back to localhost:6969.
func New(host string, port int, opts ...Option) *Client {
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	c := &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "helix")
	return c
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// notFoundMarkers are substrings the store uses to report logical misses.
// These come back with varying status codes depending on the query, so the
// body text is the reliable signal.
var notFoundMarkers = []string{"not found", "No value", "couldn't find"}

func isNotFoundBody(s string) bool {
	for _, m := range notFoundMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Query invokes the named query with params and decodes the JSON response
// into out. A nil params sends an empty object; a nil out discards the
// response body.
//
// Transport errors and 5xx responses are retried up to the configured
// budget with exponential backoff (100ms initial, doubling, 10s cap).
// Logical misses return an error satisfying errors.Is(err, ErrNotFound)
// without retrying.
func (c *Client) Query(ctx context.Context, name string, params, out any) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("helix: marshal params for %s: %w", name, err)
	}

	backoff := gax.Backoff{
		Initial:    retryInitialDelay,
		Max:        retryMaxDelay,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying query",
				"query", name, "attempt", attempt, "err", lastErr)
			if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
				return fmt.Errorf("helix: query %s: %w", name, err)
			}
		}

		retryable, err := c.post(ctx, name, body, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("helix: query %s: retries exhausted: %w", name, lastErr)
}

// post performs a single invocation. The bool reports whether the failure
// is worth retrying.
func (c *Client) post(ctx context.Context, name string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return false, &QueryError{Query: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.instance != "" {
		req.Header.Set("X-Helix-Instance", c.instance)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, &QueryError{Query: name, Err: ctx.Err()}
		}
		return true, &QueryError{Query: name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return true, &QueryError{Query: name, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return true, &QueryError{Query: name, Status: resp.StatusCode, Body: truncate(string(data), 200)}
	case resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 400 && isNotFoundBody(string(data))):
		return false, &QueryError{Query: name, Status: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode >= 400:
		return false, &QueryError{Query: name, Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, &QueryError{Query: name, Status: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return false, nil
}

// Health checks the store with a lookup that is expected to miss.
// A logical miss still proves the store is up and answering queries, so
// not-found responses count as healthy. Only transport failures and
// server errors are reported.
func (c *Client) Health(ctx context.Context) error {
	err := c.Query(ctx, "getUser", map[string]string{"user_id": "__health_check__"}, nil)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return fmt.Errorf("helix: health check: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
