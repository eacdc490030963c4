package llm

import (
	"context"
	"time"
)

// retrier holds shared exponential-backoff retry configuration for a
// provider. With the default base delay, attempts back off 2s, 4s, 8s.
type retrier struct {
	maxRetries int
	baseDelay  time.Duration
}

func newRetrier(maxRetries int, baseDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return retrier{maxRetries: maxRetries, baseDelay: baseDelay}
}

// backoff returns the delay before the given attempt (1-indexed), doubling
// from baseDelay each attempt: baseDelay, 2*baseDelay, 4*baseDelay, ...
func (r retrier) backoff(attempt int) time.Duration {
	return r.baseDelay * time.Duration(int64(1)<<uint(attempt-1))
}

// Do runs op, retrying with exponential backoff while isRetryable(err)
// holds.
func (r retrier) Do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt > r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
	return lastErr
}
