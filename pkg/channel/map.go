package channel

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/veilmesh/torchan/internal/chanconfig"
	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
	"github.com/veilmesh/torchan/pkg/padding"
)

// DefaultExpiry is returned by ExpireChannels when no Open channel is
// closer to expiring than this.
const DefaultExpiry = 180 * time.Second

// Map is the keyed state table of open and pending channels. A single
// blocking mutex protects the table, the current ChannelsParams, config,
// and dormancy flag; it must never be held across an await point, which is
// why every method here is synchronous and bounded.
type Map struct {
	mu       sync.Mutex
	entries  map[Ident]ChannelState
	params   *ChannelsParams
	config   *chanconfig.ChannelConfig
	dormancy chanconfig.Dormancy
	log      *logging.Logger
}

// NewMap constructs an empty Map. A nil config uses chanconfig defaults; a
// nil log gets a logger at the config's own LogLevel.
func NewMap(config *chanconfig.ChannelConfig, log *logging.Logger) *Map {
	if config == nil {
		config = chanconfig.DefaultChannelConfig()
	}
	if log == nil {
		log = logging.New(config.LogLevel, os.Stdout)
	}
	return &Map{
		entries: make(map[Ident]ChannelState),
		params:  NewChannelsParams(),
		config:  config,
		log:     log.Component("channelmap"),
	}
}

// Params returns the shared ChannelsParams all channels agree on.
func (m *Map) Params() *ChannelsParams { return m.params }

// ChangeFunc is the atomic read-modify-write callback passed to ChangeState
// and ReplaceWithParams. old is nil for a vacant slot. Returning a nil
// state with a nil error removes the entry (or leaves it absent); returning
// a non-nil error aborts the mutation, leaving an occupied slot Poisoned.
// f must be short, infallible in the steady-state case, and must never
// block or await: the map lock is held for its entire execution.
type ChangeFunc func(old *ChannelState) (*ChannelState, error)

// ChangeState performs one atomic read-modify-write on the entry for
// ident. External observers never see the transient Poisoned state: a
// panic or an I2 identity-mismatch violation inside f leaves the slot
// Poisoned; a subsequent Get reports it as an internal error, and a
// subsequent ChangeState passes the Poisoned state to its f as old.
// ChangeState itself always returns either the committed new state or a
// non-nil error — never Poisoned.
func (m *Map) ChangeState(ident Ident, f ChangeFunc) (ChannelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changeStateLocked(ident, f)
}

func (m *Map) changeStateLocked(ident Ident, f ChangeFunc) (ChannelState, error) {
	old, existed := m.entries[ident]
	var oldArg *ChannelState
	if existed {
		m.entries[ident] = poisonedState()
		oldArg = &old
	}

	newState, err := m.invoke(f, oldArg)
	if err != nil {
		// existed: slot stays Poisoned, matching the design's "f panicked
		// or violated I2" case. vacant: nothing was ever inserted.
		if !existed {
			delete(m.entries, ident)
		}
		return ChannelState{}, err
	}

	if newState == nil {
		delete(m.entries, ident)
		return ChannelState{}, nil
	}

	if err := newState.checkIdent(ident); err != nil {
		if !existed {
			delete(m.entries, ident)
		}
		return ChannelState{}, err
	}

	m.entries[ident] = *newState
	return *newState, nil
}

// invoke runs f, converting a panic into an InternalInvariant error so the
// caller can leave the slot Poisoned rather than letting the whole process
// crash while the map lock is held.
func (m *Map) invoke(f ChangeFunc, old *ChannelState) (ns *ChannelState, ferr error) {
	defer func() {
		if r := recover(); r != nil {
			ns = nil
			ferr = torerr.InternalInvariant(fmt.Sprintf("change_state callback panicked: %v", r))
		}
	}()
	return f(old)
}

// ReplaceWithParams is a convenience over ChangeState where f additionally
// receives a snapshot of the current padding parameters, taken under the
// same critical section. This matters because params can otherwise change
// between lock release and channel attachment: if f derives a transport
// configured from those params, it must return that transport so it gets
// registered and will receive future reparameterize calls.
func (m *Map) ReplaceWithParams(ident Ident, f func(old *ChannelState, params padding.Parameters) (*ChannelState, error)) (ChannelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.params.Snapshot()
	return m.changeStateLocked(ident, func(old *ChannelState) (*ChannelState, error) {
		return f(old, snapshot)
	})
}

// Get looks up ident. ok is false if absent. Observing Poisoned is a fatal
// internal-invariant error: it should never be the resting value of any
// slot after a public operation returns, so seeing it here means an
// earlier ChangeState call panicked or violated I2 without the caller
// noticing.
func (m *Map) Get(ident Ident) (state ChannelState, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.entries[ident]
	if !ok {
		return ChannelState{}, false, nil
	}
	if s.kind == statePoisoned {
		return ChannelState{}, true, torerr.InternalInvariant("poisoned state observed in channel map")
	}
	return s, true, nil
}

// Remove deletes the entry for ident, if any.
func (m *Map) Remove(ident Ident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ident)
}

// Len reports the number of entries currently tracked, for diagnostics.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ExpireChannels scans every entry once: an Open channel whose transport
// reports duration-unused at or beyond its MaxUnusedDuration is removed;
// Building entries and unusable-but-still-in-use channels are retained
// unconditionally. It returns the smallest remaining time-to-expiry among
// the channels it kept, defaulting to DefaultExpiry if nothing is closer —
// the interval the caller's periodic sweeper should wait before calling
// again.
func (m *Map) ExpireChannels() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	expireAfter := DefaultExpiry
	for ident, s := range m.entries {
		if s.kind == statePoisoned {
			continue
		}
		if s.readyToExpire(&expireAfter) {
			delete(m.entries, ident)
		}
	}
	return expireAfter
}

// ReconfigureGeneral applies a configuration/dormancy override and/or a
// freshly extracted netdir to the live padding parameters, fanning the
// result out to every Open transport exactly once, and only when the
// effective parameters actually changed. Callers must extract netdir (a
// NetDirExtract) from the full consensus handle *before* calling this
// method: the large consensus object itself must never be held across the
// map lock.
func (m *Map) ReconfigureGeneral(config *chanconfig.ChannelConfig, dormancy *chanconfig.Dormancy, netdir *padding.NetDirExtract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if config != nil {
		m.config = config
	}
	if dormancy != nil {
		m.dormancy = *dormancy
	}

	resolved, err := padding.Resolve(m.config.Padding, netdir, m.log)
	if err != nil {
		return err
	}

	update := m.params.StartUpdate().PaddingParameters(resolved).Finish()
	if update == nil {
		return nil
	}

	for ident, s := range m.entries {
		if s.kind != stateOpen {
			continue
		}
		if err := s.open.Channel.Reparameterize(update); err != nil {
			m.log.Warn("reparameterize failed, channel likely closing",
				"ident", ident.String(), "error", err)
		}
	}
	return nil
}

// Dormancy reports the current dormancy flag. The fan-out of
// padding-negotiation cells on dormancy transitions is not implemented;
// only the flag itself is tracked.
func (m *Map) Dormancy() chanconfig.Dormancy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dormancy
}
