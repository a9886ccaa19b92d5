package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("503 service unavailable")
	errPermanent = errors.New("400 invalid request")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

// recordSleep 记录每次退避时长而不真正等待
func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_DelayDoubles(t *testing.T) {
	p := NewPolicy("test", 5, 100*time.Millisecond, isTransient)
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
}

func TestPolicy_RetriesTransientUntilExhausted(t *testing.T) {
	var delays []time.Duration
	p := NewPolicy("test", 2, 50*time.Millisecond, isTransient).WithSleep(recordSleep(&delays))

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, delays)
}

func TestPolicy_PermanentErrorIsNotRetried(t *testing.T) {
	var delays []time.Duration
	p := NewPolicy("test", 3, time.Second, isTransient).WithSleep(recordSleep(&delays))

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errPermanent
	})

	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := NewPolicy("test", 2, 10*time.Millisecond, isTransient).WithSleep(recordSleep(&delays))

	calls := 0
	out, err := Retry(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestPolicy_NilClassifierNeverRetries(t *testing.T) {
	p := NewPolicy("test", 3, time.Millisecond, nil)
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_StopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy("test", 5, time.Hour, isTransient)

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
}
