package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Yahoo Finance query host.
	DefaultBaseURL = "https://query2.finance.yahoo.com"

	// DefaultCookieURL issues the session cookie the crumb is bound to.
	DefaultCookieURL = "https://fc.yahoo.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 20 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 2

	// DefaultUserAgent is sent on every request; Yahoo rejects the Go default.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client is a Yahoo Finance query API client.
type Client struct {
	baseURL    string
	cookieURL  string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter

	mu    sync.Mutex
	crumb string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom query host.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithCookieURL sets a custom cookie host.
func WithCookieURL(cookieURL string) ClientOption {
	return func(c *Client) {
		if cookieURL != "" {
			c.cookieURL = cookieURL
		}
	}
}

// WithUserAgent overrides the user agent.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithHTTPClient sets a custom HTTP client. A cookie jar is attached if it has none.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a new Yahoo Finance client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		cookieURL: DefaultCookieURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}

	return c
}

// do performs a request against the query host and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", c.baseURL+path).
			Msg("Yahoo API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// getCrumb returns the cached crumb, fetching a cookie and a fresh crumb on first use.
func (c *Client) getCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crumb != "" {
		return c.crumb, nil
	}

	// The cookie host answers with an error status but still sets the session cookie
	if req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, nil); err == nil {
		req.Header.Set("User-Agent", c.userAgent)
		if resp, err := c.httpClient.Do(req); err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		} else if c.logger != nil {
			c.logger.Debug().Err(err).Msg("Yahoo cookie request failed")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create crumb request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch crumb: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	crumb := strings.TrimSpace(string(raw))
	if resp.StatusCode != http.StatusOK || crumb == "" {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    "crumb unavailable",
			Endpoint:   "/v1/test/getcrumb",
		}
	}

	c.crumb = crumb
	return crumb, nil
}

func (c *Client) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}
