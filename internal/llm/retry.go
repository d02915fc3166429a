package llm

import (
	"context"
	"time"
)

// backoffBase is the first retry delay; it doubles per attempt.
var backoffBase = time.Second

// retryWithBackoff runs fn until it succeeds, returns a non-transient error, or
// maxRetries retries have been spent.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt < maxRetries {
			backoff := backoffBase << uint(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
