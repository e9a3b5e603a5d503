// Package upstream implements the HTTP client for the name resolution
// provider. It reports failures as tagged errors; the resolution engine is
// responsible for collapsing them into unresolved results.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/web3names/resolver/internal/platform/observability"
	"github.com/web3names/resolver/internal/platform/resilience"
)

var (
	// ErrStatus is returned on a non-success HTTP status
	ErrStatus = errors.New("upstream: non-success status")

	// ErrMalformed is returned when the response body cannot be decoded
	ErrMalformed = errors.New("upstream: malformed response")
)

// Record is one raw provider record. Identity correlates a batch record
// back to the requested name; matching is case-insensitive on the caller
// side.
type Record struct {
	Identity string `json:"identity"`
	Address  string `json:"address"`
	Platform string `json:"platform,omitempty"`
}

// Client performs single and batch lookups against the resolution provider
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *resilience.RateLimiter
	cb         *resilience.CircuitBreaker
	logger     *observability.Logger
	metrics    *observability.Metrics

	mu     sync.RWMutex
	apiKey string
}

// ClientConfig holds upstream client configuration
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RateLimitRPM   int
	RateLimitBurst int
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	CircuitBreaker *resilience.CircuitBreaker
}

// NewClient creates a new upstream client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.web3.bio"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPM <= 0 {
		cfg.RateLimitRPM = 600
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger("error", "json")
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "upstream",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				if cfg.Metrics != nil {
					cfg.Metrics.SetCircuitBreakerState(context.Background(), "upstream", int64(to))
				}
			},
		})
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		limiter:    resilience.NewRateLimiterFromRPM(cfg.RateLimitRPM, cfg.RateLimitBurst),
		cb:         cb,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// SetAPIKey replaces the credential forwarded on subsequent requests
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// FetchSingle looks up one name. It returns the first record of the
// response if that record carries an address, (nil, nil) when the provider
// answered but had nothing, and an error on any transport, status, or
// decode failure.
func (c *Client) FetchSingle(ctx context.Context, name string) (*Record, error) {
	endpoint := c.baseURL + "/ns/" + url.PathEscape(name)

	records, err := c.get(ctx, "single", endpoint)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 || records[0].Address == "" {
		return nil, nil
	}
	return &records[0], nil
}

// FetchBatch looks up a non-empty list of names in one request. Records are
// returned as delivered; the caller correlates them by identity.
func (c *Client) FetchBatch(ctx context.Context, names []string) ([]Record, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("upstream: empty batch")
	}

	payload, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode batch: %w", err)
	}
	endpoint := c.baseURL + "/ns/batch/" + url.PathEscape(string(payload))

	return c.get(ctx, "batch", endpoint)
}

// get performs one rate-limited request through the circuit breaker
func (c *Client) get(ctx context.Context, kind, endpoint string) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream: rate limit wait: %w", err)
	}

	start := time.Now()
	records, err := resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) ([]Record, error) {
		return c.doGet(ctx, endpoint)
	})
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(ctx, kind, status, duration)
	}

	if err != nil {
		c.logger.LogDebug(ctx, "upstream lookup failed",
			"kind", kind,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return nil, err
	}

	return records, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}

	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()
	if key != "" {
		req.Header.Set("X-API-KEY", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return records, nil
}
