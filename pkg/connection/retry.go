package connection

import (
	"context"

	"github.com/veilmesh/torchan/internal/torerr"
)

// ConnectWithRetry attempts Connect repeatedly under the given retry policy,
// wrapping each failure as a retryable OnionDialFailed error so
// torerr.WithPolicy's backoff applies. A nil policy uses
// torerr.DefaultRetryPolicy.
func (c *Connection) ConnectWithRetry(ctx context.Context, cfg *Config, policy *torerr.RetryPolicy) error {
	attempt := 0
	return torerr.WithPolicy(ctx, policy, func() error {
		attempt++
		if attempt > 1 {
			c.logger.Info("retrying relay connection", "attempt", attempt)
		}
		if err := c.Connect(ctx, cfg); err != nil {
			return torerr.OnionDialFailed("relay connection attempt failed", err)
		}
		return nil
	})
}
