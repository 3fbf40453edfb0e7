package channel

import (
	"context"
	"time"

	"github.com/veilmesh/torchan/internal/chanconfig"
	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/metrics"
	"github.com/veilmesh/torchan/pkg/padding"
)

// DialFunc performs the actual dial+handshake for ident, returning the live
// AbstractChannel on success. Implementations should respect ctx
// cancellation; the manager calls this with the map lock already released.
type DialFunc func(ctx context.Context, ident Ident, target Target) (AbstractChannel, error)

// Manager is the outer channel manager: dial deduplication, consensus
// fan-out, and idle expiry, layered over a Map.
type Manager struct {
	Map       *Map
	dial      DialFunc
	maxUnused time.Duration
	log       *logging.Logger
	metrics   *metrics.Metrics
}

// NewManager constructs a Manager over m, using dial to establish new
// channels and maxUnused as the MaxUnusedDuration recorded on every newly
// opened channel.
func NewManager(m *Map, dial DialFunc, maxUnused time.Duration, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Manager{
		Map:       m,
		dial:      dial,
		maxUnused: maxUnused,
		log:       log.Component("channelmgr"),
		metrics:   metrics.New(),
	}
}

// Metrics exposes the manager's dial and lifecycle counters.
func (mgr *Manager) Metrics() *metrics.Metrics { return mgr.metrics }

// GetOrLaunch returns the live channel for ident, dialing one via target if
// none exists. Concurrent callers requesting the same ident while a dial
// is in flight all observe the same eventual outcome, and at most one dial
// per ident is ever in flight at a time.
func (mgr *Manager) GetOrLaunch(ctx context.Context, ident Ident, target Target) (AbstractChannel, error) {
	for {
		pending := NewPendingHandle()
		var subscribeTo *PendingHandle

		result, err := mgr.Map.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
			if old != nil {
				switch {
				case old.IsOpen():
					entry, _ := old.Open()
					if entry.Channel.IsUsable() {
						return old, nil
					}
					// Unusable: fall through and replace with a fresh Building entry.
				case old.IsBuilding():
					subscribeTo, _ = old.Building()
					return old, nil
				}
			}
			bs := BuildingState(pending)
			return &bs, nil
		})
		if err != nil {
			return nil, err
		}

		if result.IsOpen() {
			entry, _ := result.Open()
			if entry.Channel.IsUsable() {
				return entry.Channel, nil
			}
			// Lost a race against a concurrent demotion; retry from the top.
			continue
		}

		if subscribeTo != nil {
			mgr.metrics.DialsCoalesced.Inc()
			return subscribeTo.Wait(ctx)
		}

		// We won the race to install the Building placeholder: we own the
		// dial, and every other concurrent caller for this ident is now
		// parked on 'pending'.
		mgr.log.Debug("dialing channel", "ident", ident.String())
		dialStart := time.Now()
		ch, dialErr := mgr.dial(ctx, ident, target)
		if dialErr != nil {
			mgr.metrics.RecordDial(false, time.Since(dialStart))
			mgr.Map.Remove(ident)
			pending.Resolve(nil, dialErr)
			return nil, dialErr
		}

		opened, err := mgr.Map.ChangeState(ident, func(*ChannelState) (*ChannelState, error) {
			os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: mgr.maxUnused})
			return &os, nil
		})
		if err != nil {
			mgr.metrics.RecordDial(false, time.Since(dialStart))
			pending.Resolve(nil, err)
			return nil, err
		}

		mgr.metrics.RecordDial(true, time.Since(dialStart))
		mgr.metrics.ActiveChannels.Set(int64(mgr.Map.Len()))

		entry, _ := opened.Open()
		pending.Resolve(entry.Channel, nil)
		return entry.Channel, nil
	}
}

// ExpireOnce runs one idle-expiry sweep and returns the interval the caller
// should wait before sweeping again.
func (mgr *Manager) ExpireOnce() time.Duration {
	before := mgr.Map.Len()
	wait := mgr.Map.ExpireChannels()
	after := mgr.Map.Len()
	if removed := before - after; removed > 0 {
		mgr.metrics.ChannelsExpired.Add(int64(removed))
	}
	mgr.metrics.ActiveChannels.Set(int64(after))
	return wait
}

// RunExpirySweeper runs the idle-expiry sweep in a loop, each time waiting
// the duration ExpireChannels just returned (clamped to DefaultExpiry),
// until ctx is canceled.
func (mgr *Manager) RunExpirySweeper(ctx context.Context) {
	for {
		wait := mgr.ExpireOnce()
		if wait > DefaultExpiry {
			wait = DefaultExpiry
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// ReconfigureGeneral applies a configuration/dormancy override and/or a
// freshly extracted netdir, fanning out to every Open channel exactly once
// iff the effective padding parameters changed.
func (mgr *Manager) ReconfigureGeneral(config *chanconfig.ChannelConfig, dormancy *chanconfig.Dormancy, netdir *padding.NetDirExtract) error {
	return mgr.Map.ReconfigureGeneral(config, dormancy, netdir)
}
