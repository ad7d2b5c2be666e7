package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/digest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), testPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
	assert.Equal(t, 1, calls)
}

func TestDo_EventualSuccess(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), testPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestDo_AllAttemptsFail(t *testing.T) {
	expectedErr := errors.New("persistent error")
	calls := 0
	attempts, err := Do(context.Background(), testPolicy(3), func(ctx context.Context) error {
		calls++
		return expectedErr
	})
	require.Error(t, err)
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := fmt.Errorf("%w: invalid api key", core.ErrPermanentProvider)
	attempts, err := Do(context.Background(), testPolicy(5), func(ctx context.Context) error {
		return permanent
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPermanentProvider)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, testPolicy(10), func(ctx context.Context) error {
		calls++
		if calls == 2 {
			cancel() // Cancel after second attempt
		}
		return errors.New("error")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled, "should return context.Canceled")
	assert.LessOrEqual(t, calls, 2, "should stop when context is canceled")
}

func TestDo_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := Do(ctx, testPolicy(10), func(ctx context.Context) error {
		calls++
		time.Sleep(30 * time.Millisecond) // Slow operation
		return errors.New("error")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "should return context.DeadlineExceeded")
	assert.LessOrEqual(t, calls, 3, "should stop when context times out")
}

func TestDo_CallTimeoutIsTransient(t *testing.T) {
	p := testPolicy(2)
	p.CallTimeout = 20 * time.Millisecond

	calls := 0
	attempts, err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts, "timed out attempts are retried")
	assert.Equal(t, 2, calls)
}

func TestDo_ExponentialBackoff(t *testing.T) {
	calls := 0
	var delays []time.Duration
	lastTime := time.Now()

	attempts, err := Do(context.Background(), testPolicy(5), func(ctx context.Context) error {
		calls++
		if calls > 1 {
			delays = append(delays, time.Since(lastTime))
		}
		lastTime = time.Now()
		if calls < 4 {
			return errors.New("error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)

	// Verify exponential backoff (each delay should be roughly 2x the previous)
	require.Len(t, delays, 3, "should have 3 delays")

	// Allow some tolerance for timing variance
	assert.Greater(t, delays[1], delays[0], "second delay should be greater than first")
	assert.Greater(t, delays[2], delays[1], "third delay should be greater than second")
}

func TestDo_InvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   error
	}{
		{"zero attempts", testPolicy(0), ErrInvalidMaxAttempts},
		{"negative attempts", testPolicy(-1), ErrInvalidMaxAttempts},
		{"negative delay", Policy{MaxAttempts: 1, BaseDelay: -1, Multiplier: 2}, ErrInvalidPolicy},
		{"multiplier below one", Policy{MaxAttempts: 1, Multiplier: 0.5}, ErrInvalidPolicy},
		{"jitter above one", Policy{MaxAttempts: 1, Multiplier: 2, Jitter: 1.5}, ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := Do(context.Background(), tt.policy, func(ctx context.Context) error {
				calls++
				return errors.New("error")
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, attempts)
			assert.Equal(t, 0, calls, "should not attempt with an invalid policy")
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
}
