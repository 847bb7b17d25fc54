package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/metrics"
)

const (
	// bodyExcerptLimit caps how much of an upstream body ends up in errors and logs
	bodyExcerptLimit = 512
	// maxBodySize guards against unbounded upstream responses
	maxBodySize = 32 << 20
)

// Client handles communication with the staff backend that owns the catalog.
// It never retries: callers decide on retry and backoff.
type Client struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit caps requests per hour; a burst of 10 is allowed
func WithRateLimit(perHour int) Option {
	return func(c *Client) {
		if perHour > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(float64(perHour)/3600), 10)
		}
	}
}

// NewClient creates a staff backend client for baseURL+path
func NewClient(baseURL, path, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:         strings.TrimRight(baseURL, "/") + path,
		apiKey:      apiKey,
		rateLimiter: rate.NewLimiter(rate.Limit(1000.0/3600), 10),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client reads from
func (c *Client) URL() string {
	return c.url
}

// FetchPayload returns the decoded JSON body without any shape checks
func (c *Client) FetchPayload(ctx context.Context) (any, error) {
	payload, _, err := c.fetch(ctx)
	return payload, err
}

// FetchProducts returns the raw product records. It accepts either
// {"products": [...]} or a bare array; anything else is an UpstreamError.
func (c *Client) FetchProducts(ctx context.Context) ([]domain.RawRecord, error) {
	payload, body, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["products"].([]any)
		if !ok {
			return nil, &domain.UpstreamError{
				StatusCode: http.StatusOK,
				Reason:     "response object has no products array",
				Body:       excerpt(body),
			}
		}
		items = list
	default:
		return nil, &domain.UpstreamError{
			StatusCode: http.StatusOK,
			Reason:     fmt.Sprintf("unexpected response shape %T", payload),
			Body:       excerpt(body),
		}
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			// kept so the mapper counts it as dropped
			obj = map[string]any{}
		}
		records = append(records, domain.RawRecord(obj))
	}

	c.logger.Info("Fetched upstream products", zap.Int("count", len(records)), zap.String("url", c.url))
	return records, nil
}

// fetch executes the GET and decodes the JSON body
func (c *Client) fetch(ctx context.Context) (any, []byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "lendmatch/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream("transport_error", time.Since(start))
		c.logger.Warn("Upstream request failed", zap.String("url", c.url), zap.Error(err))
		return nil, nil, &domain.UpstreamError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.RecordUpstream("read_error", time.Since(start))
		return nil, nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Reason: "reading body: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstream("http_error", time.Since(start))
		c.logger.Warn("Upstream returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", excerpt(body)))
		return nil, nil, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
			Body:       excerpt(body),
		}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.RecordUpstream("decode_error", time.Since(start))
		var syntaxErr *json.SyntaxError
		reason := "invalid JSON"
		if errors.As(err, &syntaxErr) {
			reason = fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset)
		}
		return nil, nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Reason: reason, Body: excerpt(body)}
	}

	metrics.RecordUpstream("success", time.Since(start))
	return payload, body, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLimit {
		return s[:bodyExcerptLimit] + "..."
	}
	return s
}
