package torerr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour})

	require.NoError(t, cb.Before())
	cb.After(errors.New("boom"))
	require.Equal(t, BreakerClosed, cb.State())

	require.NoError(t, cb.Before())
	cb.After(errors.New("boom"))
	require.Equal(t, BreakerOpen, cb.State())

	require.Error(t, cb.Before())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Millisecond})
	cb.After(errors.New("boom"))
	require.Equal(t, BreakerOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Before())
	require.Equal(t, BreakerHalfOpen, cb.State())
}

func TestCircuitBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Millisecond})
	cb.After(errors.New("boom"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Before())
	cb.After(nil)
	require.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Millisecond})
	cb.After(errors.New("boom"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Before())
	cb.After(errors.New("boom again"))
	require.Equal(t, BreakerOpen, cb.State())
}
