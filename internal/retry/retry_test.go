package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
)

type transientError struct{ retry bool }

func (e transientError) Error() string   { return "transient" }
func (e transientError) Retryable() bool { return e.retry }

var fast = Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return transientError{retry: false}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls) // Should not retry
}

func TestDo_RetryableError_EventualSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("posting: %w", transientError{retry: true})
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryableError_AllFail(t *testing.T) {
	calls := 0
	cfg := fast
	cfg.MaxAttempts = 2
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return &slack.RateLimitedError{RetryAfter: time.Millisecond}
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fast, func(ctx context.Context) error {
		calls++
		return transientError{retry: true}
	})
	// First call happens, then context is cancelled
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_GenericNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return errors.New("generic error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Config{}, func(ctx context.Context) error {
		calls++
		return transientError{retry: true}
	})
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&slack.RateLimitedError{RetryAfter: time.Second}))
	assert.True(t, IsRetryable(slack.StatusCodeError{Code: 503, Status: "503 Service Unavailable"}))
	assert.False(t, IsRetryable(slack.StatusCodeError{Code: 404, Status: "404 Not Found"}))
	assert.False(t, IsRetryable(errors.New("channel_not_found")))
	assert.False(t, IsRetryable(nil))
}
