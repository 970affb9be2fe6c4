package catalog

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(30))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&WriteError{StatusCode: 0, Err: errors.New("reset")}))
	assert.True(t, Retryable(&WriteError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&WriteError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, Retryable(&WriteError{StatusCode: http.StatusBadRequest}))
	assert.False(t, Retryable(errors.New("open a.jpg: no such file")))
}

func TestRetryDo(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Base: time.Millisecond}
	unavailable := &WriteError{Op: "create album", StatusCode: http.StatusServiceUnavailable}

	t.Run("recovers", func(t *testing.T) {
		calls, retries := 0, 0
		err := p.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return unavailable
			}
			return nil
		}, func(int, time.Duration, error) { retries++ })
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func() error { calls++; return unavailable }, nil)
		assert.ErrorIs(t, err, unavailable)
		assert.Equal(t, 3, calls)
	})

	t.Run("client error", func(t *testing.T) {
		calls := 0
		forbidden := &WriteError{StatusCode: http.StatusForbidden}
		err := p.Do(context.Background(), func() error { calls++; return forbidden }, nil)
		assert.ErrorIs(t, err, forbidden)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{Attempts: 2, Base: time.Hour}
		err := slow.Do(ctx, func() error { return unavailable }, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
