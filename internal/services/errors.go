package services

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/radiosync/internal/shared"
)

// APIError is a non-2xx response from the destination API.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.StatusCode, e.Message)
}

// RetryDelay returns the Retry-After wait of a rate-limited response.
func (e *APIError) RetryDelay() time.Duration {
	if e.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	return e.RetryAfter
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient reports whether err is a retryable destination failure:
// rate limiting, server errors and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, shared.ErrDestinationTransient) {
		return true
	}
	if errors.Is(err, shared.ErrDestinationFatal) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classify wraps err with the transient or fatal destination sentinel.
func classify(err error) error {
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", shared.ErrDestinationTransient, err)
	}
	return fmt.Errorf("%w: %w", shared.ErrDestinationFatal, err)
}
