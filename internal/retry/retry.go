// Package retry provides fixed-delay, bounded retry logic for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// OnRetry, when set, is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns 10 attempts spaced 5 seconds apart.
func DefaultConfig() Config {
	return Config{Attempts: 10, Delay: 5 * time.Second}
}

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// Delayer is implemented by errors that carry a server-requested wait, such
// as the Retry-After of a rate-limited response. A positive delay replaces
// Config.Delay for that attempt.
type Delayer interface {
	RetryDelay() time.Duration
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("max attempts exceeded")

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or cfg.Attempts calls have failed.
//
// Context errors are never retried.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if classifier == nil || !classifier(err) {
			return err
		}
		if attempt == cfg.Attempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(delayFor(err, cfg.Delay))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.Attempts, lastErr)
}

func delayFor(err error, fallback time.Duration) time.Duration {
	var d Delayer
	if errors.As(err, &d) {
		if wait := d.RetryDelay(); wait > 0 {
			return wait
		}
	}
	return fallback
}
