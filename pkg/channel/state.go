package channel

import (
	"context"
	"time"

	"github.com/veilmesh/torchan/internal/torerr"
)

type stateKind int

const (
	stateOpen stateKind = iota
	stateBuilding
	statePoisoned
)

// OpenEntry is the payload of an Open channel state: the live transport
// plus how long it may sit idle before the expiry sweep removes it.
type OpenEntry struct {
	Channel           AbstractChannel
	MaxUnusedDuration time.Duration
}

// PendingHandle is the shared, completable handle concurrent callers
// requesting the same identity await while a dial is in flight. It
// resolves exactly once; every waiter observes the same outcome.
type PendingHandle struct {
	done   chan struct{}
	result AbstractChannel
	err    error
}

// NewPendingHandle constructs an unresolved handle.
func NewPendingHandle() *PendingHandle {
	return &PendingHandle{done: make(chan struct{})}
}

// Resolve completes the handle. Calling it more than once is a bug in the
// caller (the channel manager only ever calls it once per dial); panics on
// attempted double-resolve so the mistake surfaces immediately rather than
// silently discarding the first result.
func (p *PendingHandle) Resolve(ch AbstractChannel, err error) {
	select {
	case <-p.done:
		panic(torerr.InternalInvariant("pending handle resolved twice"))
	default:
	}
	p.result = ch
	p.err = err
	close(p.done)
}

// Wait blocks until the handle resolves or ctx is canceled.
func (p *PendingHandle) Wait(ctx context.Context) (AbstractChannel, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ChannelState is a tagged union with three cases: Open (a live transport),
// Building (a pending dial other callers may subscribe to), or Poisoned (a
// transient marker that must never be the resting value observed by a
// public operation — see ChangeState).
type ChannelState struct {
	kind     stateKind
	open     *OpenEntry
	building *PendingHandle
}

// OpenState wraps an OpenEntry as an Open channel state.
func OpenState(entry OpenEntry) ChannelState {
	return ChannelState{kind: stateOpen, open: &entry}
}

// BuildingState wraps a pending handle as a Building channel state.
func BuildingState(pending *PendingHandle) ChannelState {
	return ChannelState{kind: stateBuilding, building: pending}
}

func poisonedState() ChannelState {
	return ChannelState{kind: statePoisoned}
}

// IsOpen reports whether this is an Open state.
func (s ChannelState) IsOpen() bool { return s.kind == stateOpen }

// IsBuilding reports whether this is a Building state.
func (s ChannelState) IsBuilding() bool { return s.kind == stateBuilding }

// Open returns the OpenEntry if this is an Open state.
func (s ChannelState) Open() (OpenEntry, bool) {
	if s.kind != stateOpen {
		return OpenEntry{}, false
	}
	return *s.open, true
}

// Building returns the pending handle if this is a Building state.
func (s ChannelState) Building() (*PendingHandle, bool) {
	if s.kind != stateBuilding {
		return nil, false
	}
	return s.building, true
}

// checkIdent returns an error if this state is definitely not a matching
// identity for ident — satisfies invariant I2.
func (s ChannelState) checkIdent(ident Ident) error {
	switch s.kind {
	case stateOpen:
		if s.open.Channel.Identity() != ident {
			return torerr.InternalInvariant("channel identity mismatch")
		}
		return nil
	case statePoisoned:
		return torerr.InternalInvariant("poisoned state observed in channel map")
	default: // stateBuilding
		return nil
	}
}

// readyToExpire reports whether this state should be removed by the
// expiry sweep, updating expireAfter with a smaller remaining-time bound
// when this channel isn't expiring yet but is closer to expiry than
// anything seen so far.
func (s ChannelState) readyToExpire(expireAfter *time.Duration) bool {
	if s.kind != stateOpen {
		return false
	}
	unused, inUse := s.open.Channel.DurationUnused()
	if !inUse {
		// Still in use; not a candidate for expiry at all.
		return false
	}
	max := s.open.MaxUnusedDuration
	if unused >= max {
		return true
	}
	remaining := max - unused
	if remaining < *expireAfter {
		*expireAfter = remaining
	}
	return false
}
