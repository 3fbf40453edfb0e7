package torerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithPolicy_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := WithPolicy(context.Background(), fastPolicy(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithPolicy_RetriesRetryableThenSucceeds(t *testing.T) {
	calls := 0
	err := WithPolicy(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return OnionDialFailed("dial timed out", errors.New("i/o timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithPolicy_StopsImmediatelyOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithPolicy(context.Background(), fastPolicy(), func() error {
		calls++
		return UnsupportedURIScheme("ftp://x")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := WithPolicy(context.Background(), fastPolicy(), func() error {
		calls++
		return OnionDialFailed("dial refused", errors.New("connection refused"))
	})
	require.Error(t, err)
	require.Equal(t, 4, calls) // initial + 3 retries
}

func TestWithPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithPolicy(ctx, fastPolicy(), func() error {
		return nil
	})
	require.Error(t, err)
}
