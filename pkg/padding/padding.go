// Package padding derives the live channel-padding timing parameters from
// consensus data and user configuration. Padding cells are cover traffic
// emitted on otherwise-idle channels to resist traffic analysis; the timing
// window in which they're sent comes from the consensus, with a config
// knob to scale it down or turn it off.
package padding

import (
	"github.com/veilmesh/torchan/internal/chanconfig"
	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
)

// CircuitPaddingTimeoutUpperBound bounds any nf_ito_* consensus value, in
// milliseconds, matching the netdir parameter's own declared range.
const CircuitPaddingTimeoutUpperBound = 60_000

// Parameters is a pair of bounded millisecond bounds, low <= high.
type Parameters struct {
	LowMs  uint32
	HighMs uint32
}

// AllZeroes is the sentinel meaning "padding disabled".
func AllZeroes() Parameters { return Parameters{} }

// DefaultNormal is the named default for PaddingNormal when no consensus
// value is available.
func DefaultNormal() Parameters { return Parameters{LowMs: 1500, HighMs: 9500} }

// DefaultReduced is the named default for PaddingReduced when no consensus
// value is available.
func DefaultReduced() Parameters { return Parameters{LowMs: 9000, HighMs: 14000} }

// NetDirExtract is the small value copied out of the consensus before
// acquiring the channel-map lock: just the four nf_ito_* fields, indexed
// [normal=0,reduced=1][low=0,high=1].
type NetDirExtract struct {
	NfIto [2][2]uint32
}

// Resolve computes one Parameters value from a padding level and an
// optional consensus extract (nil netdir means "consensus unavailable").
//
// PaddingLevel::None always yields AllZeroes. Otherwise, if a consensus
// extract is available its low/high values are used (validated low<=high
// and range-bounded); on any validation failure, or when no consensus is
// available at all, the named default for the level is used instead — per
// the original behavior, an explicit config override does not take effect
// when the consensus is absent (see DESIGN.md's Open Question decision).
func Resolve(level chanconfig.PaddingLevel, netdir *NetDirExtract, log *logging.Logger) (Parameters, error) {
	var reduced bool
	switch level {
	case chanconfig.PaddingNone:
		return AllZeroes(), nil
	case chanconfig.PaddingReduced:
		reduced = true
	case chanconfig.PaddingNormal:
		reduced = false
	default:
		return Parameters{}, torerr.InternalInvariant("padding: unknown PaddingLevel " + string(level))
	}

	if netdir == nil {
		if reduced {
			return DefaultReduced(), nil
		}
		return DefaultNormal(), nil
	}

	idx := 0
	if reduced {
		idx = 1
	}
	low := netdir.NfIto[idx][0]
	high := netdir.NfIto[idx][1]

	if low > high || low > CircuitPaddingTimeoutUpperBound || high > CircuitPaddingTimeoutUpperBound {
		if log != nil {
			log.Warn("consensus channel padding parameters wrong, using defaults",
				"low_ms", low, "high_ms", high)
		}
		if reduced {
			return DefaultReduced(), nil
		}
		return DefaultNormal(), nil
	}

	return Parameters{LowMs: low, HighMs: high}, nil
}
