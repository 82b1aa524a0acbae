// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Store errors.
	ErrNotFound = errors.New("not found")

	// Storefront errors.
	ErrAuth         = errors.New("authentication failed")
	ErrPermission   = errors.New("missing access scope")
	ErrConnectivity = errors.New("storefront unreachable")

	// Classifier errors.
	ErrNoProducts            = errors.New("no products to classify")
	ErrClassifierMalformed   = errors.New("malformed classifier response")
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrPartitionInvariant indicates the classification run lost products:
	// the final partition does not cover every input exactly once. This is
	// the one failure that must abort a run rather than degrade.
	ErrPartitionInvariant = errors.New("partition invariant violated")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
