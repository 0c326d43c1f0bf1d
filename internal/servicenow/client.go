// Package servicenow provides the HTTP client for the ServiceNow Table API.
//
// # Client Architecture
//
// The Client wraps Go's standard net/http.Client and provides:
//
//   - Authentication: Delegates to the [Authenticator] interface for token management.
//   - 401 recovery: Calls [Authenticator.ForceRefresh] and retries immediately.
//   - 429 rate limiting: Respects the Retry-After header from ServiceNow.
//   - Optional retry with backoff for transient errors (off by default).
//   - Optional rate limiter: Proactive client-side rate limiting via golang.org/x/time/rate.
//
// # Retry Strategy
//
// Retries are disabled by default (MaxRetries = 0): an interactive tool call
// maps to a single HTTP attempt and surfaces failures to the caller, which
// reports them in its result envelope. When retries are enabled via config,
// the loop differentiates errors by HTTP status code:
//
//	┌─────────────────────┬─────────────────────────────────────────────────┐
//	│ Status / Error      │ Action                                          │
//	├─────────────────────┼─────────────────────────────────────────────────┤
//	│ 2xx                 │ Success — return parsed response                │
//	│ 401 Unauthorized    │ ForceRefresh auth, retry immediately (no backoff)│
//	│ 429 Too Many Reqs   │ Sleep for Retry-After header value, then retry  │
//	│ 5xx / network error │ Exponential backoff with jitter (100ms → 5min)  │
//	│ 404 Not Found       │ Return ErrNotFound immediately                  │
//	│ 4xx (other)         │ Fatal — return error immediately, do not retry  │
//	└─────────────────────┴─────────────────────────────────────────────────┘
//
// # URL Construction
//
// APIs are called at: {InstanceURL}{TableAPIPath}/{tableName}?sysparm_query=...
//
// Query parameters follow the ServiceNow Table API convention:
//   - sysparm_query: Encoded query string ([QueryBuilder] or raw)
//   - sysparm_limit: Max records to return
//   - sysparm_offset: Pagination offset
//   - sysparm_fields: Comma-separated field list
//   - sysparm_display_value: "true" or "all" for display values
//   - sysparm_exclude_reference_link: true (strip reference URLs)
//
// # Thread Safety
//
// The Client is safe for concurrent use. The underlying http.Client handles
// connection pooling, and the Authenticator ensures thread-safe token access.
package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ThrownLemon/snow-mcp/internal/config"
	"github.com/ThrownLemon/snow-mcp/internal/observability"
)

// ErrNotFound is returned when a record does not exist (HTTP 404 or an
// empty lookup result).
var ErrNotFound = errors.New("record not found")

// ListOptions controls a multi-record Table API query.
type ListOptions struct {
	// Query is a ServiceNow encoded query (sysparm_query). Empty means all records.
	Query string
	// Fields limits the returned columns (sysparm_fields). Nil means all fields.
	Fields []string
	// Limit caps the number of returned records (sysparm_limit). 0 means server default.
	Limit int
	// Offset is the pagination offset (sysparm_offset). Negative values are ignored.
	Offset int
	// DisplayValue is "", "true", or "all" (sysparm_display_value).
	DisplayValue string
	// OrderBy appends ^ORDERBY[DESC]field to the encoded query.
	OrderBy    string
	Descending bool
	// IncludeReferenceLinks keeps reference link objects in the response.
	// Default false sets sysparm_exclude_reference_link=true.
	IncludeReferenceLinks bool
}

// GetOptions controls a single-record Table API fetch.
type GetOptions struct {
	Fields       []string
	DisplayValue string
}

// Client provides methods to interact with the ServiceNow Table API.
// All methods are safe for concurrent use.
type Client interface {
	// ListRecords queries a table and returns matching records plus the total
	// match count from the X-Total-Count header (-1 when absent).
	ListRecords(ctx context.Context, table string, opts ListOptions) ([]Record, int, error)

	// GetRecord fetches a single record by sys_id. Returns ErrNotFound when
	// the record does not exist.
	GetRecord(ctx context.Context, table, sysID string, opts GetOptions) (Record, error)

	// CreateRecord creates a new record in the specified table.
	// Returns the created record (which includes the assigned sys_id).
	CreateRecord(ctx context.Context, table string, record Record) (Record, error)

	// UpdateRecord updates an existing record identified by sysID.
	// Uses HTTP PATCH for partial updates. Returns the updated record.
	UpdateRecord(ctx context.Context, table, sysID string, record Record) (Record, error)

	// DeleteRecord deletes a record by sys_id. Returns ErrNotFound when the
	// record does not exist.
	DeleteRecord(ctx context.Context, table, sysID string) error

	// Close releases any resources held by the client.
	Close()
}

// httpClient is the concrete implementation of the Client interface.
type httpClient struct {
	baseURL      string
	tableAPIPath string
	auth         Authenticator
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger

	// Retry configuration
	maxRetries         int
	initialBackoff     time.Duration
	maxBackoff         time.Duration
	retryBackoffFactor float64
}

// ClientOption is a functional option for configuring the HTTP client.
type ClientOption func(*httpClient)

// WithRateLimiter sets a client-side rate limiter.
func WithRateLimiter(rps float64) ClientOption {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps)))
		}
	}
}

// WithHTTPClient replaces the underlying http.Client. Mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.http = hc
	}
}

// NewClient creates a new ServiceNow HTTP client.
//
// The client uses the provided Authenticator for all requests. The caller is
// responsible for calling Close() on both the client and the authenticator
// when they are no longer needed.
func NewClient(cfg config.ServiceNowConfig, auth Authenticator, logger *slog.Logger, opts ...ClientOption) Client {
	c := &httpClient{
		baseURL:      strings.TrimRight(cfg.InstanceURL, "/"),
		tableAPIPath: cfg.TableAPIPath,
		auth:         auth,
		logger:       logger.With("component", "sn-client"),
		http: &http.Client{
			Timeout: cfg.Timeout.Duration,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},

		// Retry defaults
		maxRetries:         cfg.MaxRetries,
		initialBackoff:     100 * time.Millisecond,
		maxBackoff:         cfg.RetryMaxBackoff.Duration,
		retryBackoffFactor: 2.0,
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = 5 * time.Minute
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases resources. Currently a no-op but included for interface
// compliance and future extensibility.
func (c *httpClient) Close() {}

// ListRecords queries a ServiceNow table using the Table API.
//
//	GET {baseURL}/api/now/table/{table}?sysparm_query=...&sysparm_limit=...
//
// The response JSON has the structure: {"result": [{...}, {...}, ...]}
func (c *httpClient) ListRecords(ctx context.Context, table string, opts ListOptions) ([]Record, int, error) {
	reqURL, err := c.buildTableURL(table, opts)
	if err != nil {
		return nil, -1, err
	}

	c.logger.Debug("listing records",
		"table", table,
		"query", opts.Query,
		"limit", opts.Limit,
		"offset", opts.Offset,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("creating GET request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, header, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, -1, err
	}

	var resp TableResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, -1, fmt.Errorf("parsing response JSON: %w (body: %.200s)", err, string(body))
	}

	total := -1
	if tc := header.Get("X-Total-Count"); tc != "" {
		if n, err := strconv.Atoi(tc); err == nil {
			total = n
		}
	}

	return resp.Result, total, nil
}

// GetRecord fetches a single record:
//
//	GET {baseURL}/api/now/table/{table}/{sys_id}
func (c *httpClient) GetRecord(ctx context.Context, table, sysID string, opts GetOptions) (Record, error) {
	u, err := url.Parse(c.recordURL(table, sysID))
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	params := url.Values{}
	params.Set("sysparm_exclude_reference_link", "true")
	if len(opts.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(opts.Fields, ","))
	}
	if opts.DisplayValue != "" {
		params.Set("sysparm_display_value", opts.DisplayValue)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating GET request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, _, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp RecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing record response: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil, ErrNotFound
	}
	return resp.Result, nil
}

// CreateRecord creates a new record via POST to the Table API.
//
//	POST {baseURL}/api/now/table/{table}
//	Body: JSON record
//
// Returns the created record from the response, which includes the sys_id
// assigned by ServiceNow.
func (c *httpClient) CreateRecord(ctx context.Context, table string, record Record) (Record, error) {
	reqURL := fmt.Sprintf("%s%s/%s", c.baseURL, c.tableAPIPath, strings.TrimLeft(table, "/"))

	req, err := c.jsonRequest(ctx, http.MethodPost, reqURL, record)
	if err != nil {
		return nil, err
	}

	body, _, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp RecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing create response: %w", err)
	}
	return resp.Result, nil
}

// UpdateRecord updates an existing record via PATCH to the Table API.
//
//	PATCH {baseURL}/api/now/table/{table}/{sys_id}
//	Body: JSON record (partial update)
func (c *httpClient) UpdateRecord(ctx context.Context, table, sysID string, record Record) (Record, error) {
	req, err := c.jsonRequest(ctx, http.MethodPatch, c.recordURL(table, sysID), record)
	if err != nil {
		return nil, err
	}

	body, _, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp RecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing update response: %w", err)
	}
	return resp.Result, nil
}

// DeleteRecord deletes a record:
//
//	DELETE {baseURL}/api/now/table/{table}/{sys_id}
func (c *httpClient) DeleteRecord(ctx context.Context, table, sysID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.recordURL(table, sysID), nil)
	if err != nil {
		return fmt.Errorf("creating DELETE request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	_, _, err = c.doWithRetry(ctx, req)
	return err
}

// recordURL constructs {baseURL}{tableAPIPath}/{table}/{sysID}.
func (c *httpClient) recordURL(table, sysID string) string {
	return fmt.Sprintf("%s%s/%s/%s", c.baseURL, c.tableAPIPath, strings.TrimLeft(table, "/"), url.PathEscape(sysID))
}

// jsonRequest builds a request with a JSON-encoded record body.
func (c *httpClient) jsonRequest(ctx context.Context, method, reqURL string, record Record) (*http.Request, error) {
	jsonBody, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// buildTableURL constructs the full request URL for a Table API GET query.
// All values are properly URL-encoded using net/url.
func (c *httpClient) buildTableURL(table string, opts ListOptions) (string, error) {
	u, err := url.Parse(c.baseURL + c.tableAPIPath + "/" + strings.TrimLeft(table, "/"))
	if err != nil {
		return "", fmt.Errorf("building URL: %w", err)
	}

	query := opts.Query
	if opts.OrderBy != "" {
		order := snORDERBY
		if opts.Descending {
			order = snORDERBYDESC
		}
		if query != "" {
			query += snAND
		}
		query += order + opts.OrderBy
	}

	params := url.Values{}
	if !opts.IncludeReferenceLinks {
		params.Set("sysparm_exclude_reference_link", "true")
	}
	if opts.Offset > 0 {
		params.Set("sysparm_offset", strconv.Itoa(opts.Offset))
	}
	if opts.Limit > 0 {
		params.Set("sysparm_limit", strconv.Itoa(opts.Limit))
	}
	if query != "" {
		params.Set("sysparm_query", query)
	}
	if len(opts.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(opts.Fields, ","))
	}
	if opts.DisplayValue != "" {
		params.Set("sysparm_display_value", opts.DisplayValue)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// doWithRetry executes an HTTP request with the configured retry strategy.
//
// The loop works as follows:
//
//  1. Wait for rate limiter (if configured)
//  2. Attach current auth token to the request
//  3. Send the request
//  4. On success: return the response body and headers
//  5. On 401: call ForceRefresh, retry immediately (no backoff)
//  6. On 429: sleep for Retry-After seconds, retry
//  7. On 5xx or network error: exponential backoff with jitter
//  8. On 404: return ErrNotFound immediately
//  9. On 4xx (other): return error immediately (non-retryable)
//
// With maxRetries = 0 cases 6 and 7 exit after the first failure; the 401
// refresh still gets one immediate re-attempt so an expired token does not
// fail an otherwise healthy call.
func (c *httpClient) doWithRetry(ctx context.Context, req *http.Request) ([]byte, http.Header, error) {
	method := req.Method
	endpoint := req.URL.Path
	backoff := c.initialBackoff
	maxAttempts := c.maxRetries
	if maxAttempts < 0 {
		maxAttempts = math.MaxInt32 // unlimited
	}

	refreshed := false
	var lastErr error
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		// Check context before each attempt.
		if err := ctx.Err(); err != nil {
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "context_canceled").Inc()
			return nil, nil, fmt.Errorf("request cancelled: %w", err)
		}

		// Apply rate limiting if configured.
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "rate_limited").Inc()
				return nil, nil, fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		// Get the current auth token and set it on the request.
		token, err := c.auth.Token(ctx)
		if err != nil {
			lastErr = fmt.Errorf("getting auth token: %w", err)
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "auth").Inc()
			continue
		}
		// Clone the request to avoid mutating the original on retry, and
		// re-create the body for POST/PATCH re-attempts.
		reqClone := req.Clone(ctx)
		reqClone.Header.Set("Authorization", token)
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, nil, fmt.Errorf("re-creating request body: %w", bodyErr)
			}
			reqClone.Body = body
		}

		requestStart := time.Now()
		resp, err := c.http.Do(reqClone)
		observability.Metrics.SNAPIRequestsTotal.WithLabelValues(method, endpoint).Inc()
		observability.Metrics.SNAPILatency.WithLabelValues(method, endpoint).Observe(time.Since(requestStart).Seconds())
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "network").Inc()
			c.logger.Warn("request failed",
				"attempt", attempt+1,
				"error", err,
				"backoff", backoff,
			)
			c.sleepWithJitter(ctx, backoff)
			backoff = c.nextBackoff(backoff)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			c.sleepWithJitter(ctx, backoff)
			backoff = c.nextBackoff(backoff)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, resp.Header, nil

		case resp.StatusCode == 401 && !refreshed:
			// Unauthorized — force a token refresh and retry once immediately.
			c.logger.Info("received 401, forcing token refresh",
				"attempt", attempt+1,
			)
			if refreshErr := c.auth.ForceRefresh(ctx); refreshErr != nil {
				c.logger.Error("token refresh failed", "error", refreshErr)
			}
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "401").Inc()
			lastErr = fmt.Errorf("received 401 Unauthorized: %s", truncateBody(body))
			refreshed = true
			attempt-- // the refresh re-attempt does not consume the retry budget
			continue

		case resp.StatusCode == 429:
			// Rate limited — respect Retry-After header.
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("received 429",
				"retry_after", retryAfter,
				"attempt", attempt+1,
			)
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "429").Inc()
			lastErr = fmt.Errorf("received 429 Too Many Requests")
			if attempt < maxAttempts {
				c.sleepWithJitter(ctx, retryAfter)
			}
			continue

		case resp.StatusCode >= 500:
			// Server error — retry with backoff if budget remains.
			lastErr = fmt.Errorf("received %d: %s", resp.StatusCode, truncateBody(body))
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			c.logger.Warn("server error",
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"backoff", backoff,
			)
			if attempt < maxAttempts {
				c.sleepWithJitter(ctx, backoff)
				backoff = c.nextBackoff(backoff)
			}
			continue

		case resp.StatusCode == http.StatusNotFound:
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, "404").Inc()
			return nil, nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, endpoint)

		default:
			// 4xx (non-401, non-404, non-429) — fatal, do not retry.
			observability.Metrics.SNAPIErrorsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
			return nil, nil, fmt.Errorf("non-retryable error %d: %s", resp.StatusCode, truncateBody(body))
		}
	}

	return nil, nil, fmt.Errorf("exhausted %d retries: %w", maxAttempts, lastErr)
}

// nextBackoff calculates the next backoff duration using exponential growth
// capped at maxBackoff.
func (c *httpClient) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.retryBackoffFactor)
	if next > c.maxBackoff {
		return c.maxBackoff
	}
	return next
}

// sleepWithJitter sleeps for a random duration between 50% and 100% of the
// given base duration. Returns early if the context is cancelled.
func (c *httpClient) sleepWithJitter(ctx context.Context, base time.Duration) {
	// Jitter: sleep for [0.5*base, base]
	jitter := time.Duration(float64(base) * (0.5 + rand.Float64()*0.5))
	select {
	case <-ctx.Done():
	case <-time.After(jitter):
	}
}

// parseRetryAfter parses the Retry-After header value as seconds.
// Returns a default of 30 seconds if the header is empty or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 30 * time.Second
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// truncateBody returns the first 500 bytes of a response body for logging.
func truncateBody(body []byte) string {
	if len(body) > 500 {
		return string(body[:500]) + "..."
	}
	return string(body)
}
