package catalog

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy bounds retries of remote writes. Delays double from Base up
// to Max; Attempts counts the first try.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.Base
	for i := 1; i < retry; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, fails with an error that is not
// Retryable, or runs out of attempts. It returns the last error.
// onRetry, when set, is told about each retry before its wait.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(retry int, delay time.Duration, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			if onRetry != nil {
				onRetry(attempt, delay, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = fn(); err == nil || !Retryable(err) {
			return err
		}
	}
	return err
}

// Retryable reports whether a failed write may succeed if repeated:
// transport failures, throttling and server errors.
func Retryable(err error) bool {
	var we *WriteError
	if !errors.As(err, &we) {
		return false
	}
	switch {
	case we.StatusCode == 0:
		return true
	case we.StatusCode == http.StatusTooManyRequests, we.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return we.StatusCode >= 500
	}
}
