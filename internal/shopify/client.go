// Package shopify provides a client for the storefront Admin REST API,
// covering paginated product ingestion and the collection sink operations.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion = "2024-01"
	// defaultWriteRate is the published API ceiling of 2 requests/second
	// for write calls, i.e. 0.5s spacing.
	defaultWriteRate = 2.0
	// defaultRetryAfter applies when a 429 response omits the header.
	defaultRetryAfter = 2 * time.Second
)

// Config holds storefront API configuration.
type Config struct {
	ShopURL     string
	AccessToken string
	APIVersion  string
	// WriteRate caps mutating calls per second; 0 uses the default.
	WriteRate float64
	Timeout   time.Duration
	Retry     common.RetryOptions
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ShopURL == "" {
		return fmt.Errorf("%w: shop URL is required", common.ErrMissingConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", common.ErrMissingConfig)
	}
	return nil
}

// APIError is a non-2xx storefront response, carrying enough for the caller
// to decide between retry, degrade, and abort.
type APIError struct {
	Body   string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront API error (status %d): %s", e.Status, e.Body)
}

// Client talks to one store's Admin API with rate limiting and retries.
type Client struct {
	httpClient   *http.Client
	logger       *slog.Logger
	writeLimiter *rate.Limiter
	baseURL      string
	token        string
	retryOpts    common.RetryOptions
}

// NewClient creates a storefront API client for the configured store.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	writeRate := cfg.WriteRate
	if writeRate <= 0 {
		writeRate = defaultWriteRate
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryOpts := cfg.Retry
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.BaseDelay == 0 {
		retryOpts.BaseDelay = time.Second
	}

	return &Client{
		baseURL:      normalizeShopURL(cfg.ShopURL) + "/admin/api/" + version,
		token:        cfg.AccessToken,
		writeLimiter: rate.NewLimiter(rate.Limit(writeRate), 1),
		retryOpts:    retryOpts,
		logger:       slog.Default().With("component", "shopify"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// normalizeShopURL cleans up a user-entered shop URL. A bare domain gets
// https; an explicit scheme is preserved.
func normalizeShopURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// get issues a read call. url may be a path relative to the API base or an
// absolute URL (pagination cursors come back absolute).
func (c *Client) get(ctx context.Context, url string) ([]byte, http.Header, error) {
	return c.call(ctx, http.MethodGet, url, nil)
}

// post issues a write call, honoring the write-rate ceiling.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.call(ctx, http.MethodPost, path, payload)
	return body, err
}

// put issues a write call, honoring the write-rate ceiling.
func (c *Client) put(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.call(ctx, http.MethodPut, path, payload)
	return body, err
}

// call runs one API call under the retry policy. Transport failures and 5xx
// responses consume the linear-backoff retry budget; 429 responses sleep for
// the indicated Retry-After and repeat without consuming it; any other
// non-2xx returns an APIError for the caller to interpret.
func (c *Client) call(ctx context.Context, method, url string, payload any) ([]byte, http.Header, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.baseURL + url
	}

	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	var respBody []byte
	var respHeader http.Header

	err := common.WithRetry(ctx, func() error {
		for {
			var bodyReader io.Reader
			if encoded != nil {
				bodyReader = bytes.NewReader(encoded)
			}

			req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
			if err != nil {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			req.Header.Set("X-Shopify-Access-Token", c.token)
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return &common.RetryableError{Err: err, Retryable: true}
			}

			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return &common.RetryableError{Err: readErr, Retryable: true}
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				delay := retryAfter(resp.Header)
				c.logger.Warn("rate limited by storefront, waiting",
					"delay", delay,
					"url", url)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
				continue
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				respBody = body
				respHeader = resp.Header
				return nil
			}

			apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			return &common.RetryableError{Err: apiErr, Retryable: resp.StatusCode >= 500}
		}
	}, c.retryOpts)

	if err != nil {
		return nil, nil, unwrapAPIError(err)
	}
	return respBody, respHeader, nil
}

// retryAfter reads the Retry-After header, defaulting when absent or junk.
func retryAfter(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds * float64(time.Second))
}

// unwrapAPIError exposes the APIError directly when the retry wrapper gave
// up on one, so callers can match on status codes.
func unwrapAPIError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return err
}
