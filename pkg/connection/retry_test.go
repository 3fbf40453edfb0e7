package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
)

func TestConnectWithRetry_GivesUpOnUnroutableAddress(t *testing.T) {
	cfg := DefaultConfig("192.0.2.1:9001")
	cfg.Timeout = 50 * time.Millisecond
	conn := New(cfg, logging.NewDefault())

	policy := &torerr.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := conn.ConnectWithRetry(context.Background(), cfg, policy)
	require.Error(t, err)
}

func TestConnectWithRetry_LeavesConnectingStateAgainstMockServer(t *testing.T) {
	address, cleanup := setupMockTLSServer(t)
	defer cleanup()

	cfg := DefaultConfig(address)
	conn := New(cfg, logging.NewDefault())
	defer conn.Close()

	policy := &torerr.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	_ = conn.ConnectWithRetry(context.Background(), cfg, policy)
	// The mock server accepts then immediately closes; we only assert the
	// retry loop drives the state machine out of StateConnecting.
	require.NotEqual(t, StateConnecting, conn.getState())
}
