// Package chanconfig holds the configuration surface the channel manager
// consumes. Loading it from a file or flag set is an external collaborator
// (explicitly out of scope); this package only defines the shape, defaults,
// validation, and cloning semantics.
package chanconfig

import "fmt"

// PaddingLevel selects how much cover traffic the padding resolver aims for.
type PaddingLevel string

const (
	// PaddingNone disables padding entirely.
	PaddingNone PaddingLevel = "none"
	// PaddingReduced uses the reduced-bandwidth padding profile.
	PaddingReduced PaddingLevel = "reduced"
	// PaddingNormal uses the normal padding profile.
	PaddingNormal PaddingLevel = "normal"
)

// ChannelConfig is the configuration surface consumed by the padding
// resolver and the channel manager's reconfigure path.
type ChannelConfig struct {
	// Padding selects the cover-traffic profile.
	Padding PaddingLevel

	// MaxUnusedDuration is how long an Open channel may sit idle before the
	// expiry sweep removes it.
	MaxUnusedDuration TimeoutSeconds

	// ConnLimit bounds concurrent live channels (0 = unlimited).
	ConnLimit int

	// LogLevel: debug, info, warn, error.
	LogLevel string
}

// TimeoutSeconds is a bounded, non-negative duration expressed in seconds,
// matching the plain-integer shape consensus parameters arrive in.
type TimeoutSeconds int

// Dormancy records whether the client has been put into its low-activity
// mode. The fan-out of padding-negotiation cells on dormancy transitions is
// not implemented; only the flag is tracked, per design.
type Dormancy bool

const (
	// Active is the normal operating mode.
	Active Dormancy = false
	// Dormant is the low-activity mode.
	Dormant Dormancy = true
)

// DefaultChannelConfig returns sensible defaults: normal padding, a 180s
// idle budget matching the channel map's DefaultExpiry (the longest wait
// ExpireChannels ever returns), no
// connection limit, and info-level logging.
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		Padding:           PaddingNormal,
		MaxUnusedDuration: 180,
		ConnLimit:         0,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for internal consistency.
func (c *ChannelConfig) Validate() error {
	switch c.Padding {
	case PaddingNone, PaddingReduced, PaddingNormal:
	default:
		return fmt.Errorf("invalid Padding level: %q", c.Padding)
	}
	if c.MaxUnusedDuration < 0 {
		return fmt.Errorf("MaxUnusedDuration must be non-negative")
	}
	if c.ConnLimit < 0 {
		return fmt.Errorf("ConnLimit must be non-negative")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid LogLevel: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	return nil
}

// Clone creates a deep copy of the configuration. ChannelConfig currently
// has no slice/map fields, but Clone is kept (rather than relying on `*c`
// copies at call sites) so a future field addition doesn't silently become
// a shallow-copy bug, matching the teacher's config.Clone idiom.
func (c *ChannelConfig) Clone() *ChannelConfig {
	clone := *c
	return &clone
}
