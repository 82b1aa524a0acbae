package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
)

// Throttled wraps a Client with rate limiting and bounded retries. Both the
// classification engine and the taxonomy generator call the model through
// this wrapper so the external API sees a serialized, budgeted call pattern.
type Throttled struct {
	client      Client
	rateLimiter *rateLimiter
	logger      *slog.Logger
	retryOpts   common.RetryOptions
}

// NewThrottled builds the throttled wrapper from config. RateLimit is in
// requests per minute.
func NewThrottled(client Client, cfg Config, logger *slog.Logger) *Throttled {
	retryOpts := common.RetryOptions{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryDelay,
		MaxDelay:    30 * time.Second,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.BaseDelay == 0 {
		retryOpts.BaseDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Throttled{
		client:      client,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		logger:      logger,
		retryOpts:   retryOpts,
	}
}

// Chat acquires a rate-limit token, then calls the underlying client with
// retries. Transport failures are retried; the response text itself is
// returned unvalidated.
func (t *Throttled) Chat(ctx context.Context, req Request) (string, error) {
	if err := t.rateLimiter.wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	var content string
	err := common.WithRetry(ctx, func() error {
		response, err := t.client.Chat(ctx, req)
		if err != nil {
			t.logger.Warn("LLM call attempt failed", "error", err)
			return &common.RetryableError{Err: err, Retryable: true}
		}
		content = response
		return nil
	}, t.retryOpts)

	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrClassifierUnavailable, err)
	}

	return content, nil
}

// Close releases the rate limiter's background goroutine.
func (t *Throttled) Close() error {
	t.rateLimiter.Close()
	return nil
}
