package errors

import (
	"context"
	"time"
)

// RetryController implements the queue's exponential backoff contract:
// attempts are numbered from 1 and the delay before attempt n+1 is
// baseDelay * 2^(n-1), i.e. 100ms, 200ms, 400ms with the default base.
//
// Unlike a generic retry helper there is no jitter and no classification
// gate: the delays and the attempt count are part of the caller-facing
// contract, so every failure consumes one attempt.
type RetryController struct {
	baseDelay time.Duration
}

// NewRetryController creates a retry controller with the default 100ms base.
func NewRetryController() *RetryController {
	return &RetryController{baseDelay: 100 * time.Millisecond}
}

// NewRetryControllerWithBase creates a retry controller with an explicit base
// delay. Tests use a small base to keep backoff timing fast.
func NewRetryControllerWithBase(base time.Duration) *RetryController {
	return &RetryController{baseDelay: base}
}

// Delay returns the backoff delay after the given attempt (numbered from 1).
func (rc *RetryController) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return rc.baseDelay * time.Duration(1<<uint(attempt-1))
}

// Do runs fn up to attempts times, sleeping the contract delay between
// attempts. It returns nil on the first success, the last error after the
// final attempt, or the context error if the wait is interrupted.
func (rc *RetryController) Do(ctx context.Context, attempts int, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := fn(attempt); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(rc.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
