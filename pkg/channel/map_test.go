package channel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veilmesh/torchan/pkg/padding"
)

var errBoom = errors.New("boom")

// fakeChannel is a test double implementing AbstractChannel with
// controllable usability and idle duration, used to drive the scenario
// fixtures from the spec's expiry and padding fan-out tests.
type fakeChannel struct {
	ident Ident

	mu         sync.Mutex
	usable     bool
	unused     time.Duration
	inUse      bool // true means DurationUnused reports ok=false
	reparamErr error
	updates    []*ParamsUpdate
}

func newFakeChannel(ident Ident) *fakeChannel {
	return &fakeChannel{ident: ident, usable: true}
}

func (f *fakeChannel) Identity() Ident { return f.ident }

func (f *fakeChannel) IsUsable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usable
}

func (f *fakeChannel) DurationUnused() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inUse {
		return 0, false
	}
	return f.unused, true
}

func (f *fakeChannel) Reparameterize(update *ParamsUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reparamErr != nil {
		return f.reparamErr
	}
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeChannel) NoteUsage(kind UsageKind) error { return nil }

func (f *fakeChannel) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func identOf(b byte) Ident {
	var id Ident
	id[0] = b
	return id
}

func TestChangeState_InsertsAndUpdatesAtomically(t *testing.T) {
	m := NewMap(nil, nil)
	ident := identOf(1)
	ch := newFakeChannel(ident)

	state, err := m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		require.Nil(t, old)
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, err)
	require.True(t, state.IsOpen())

	got, ok, err := m.Get(ident)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.IsOpen())
}

func TestChangeState_RemovesOnNilReturn(t *testing.T) {
	m := NewMap(nil, nil)
	ident := identOf(2)
	ch := newFakeChannel(ident)

	_, err := m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, err)

	_, err = m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, ok, err := m.Get(ident)
	require.NoError(t, err)
	require.False(t, ok)
}

// P4/I1: identity mismatch poisons the slot; it never leaks out as the
// resting value, but subsequent Get calls see the InternalInvariant error.
func TestChangeState_IdentityMismatchPoisonsSlot(t *testing.T) {
	m := NewMap(nil, nil)
	ident := identOf(3)
	other := identOf(4)
	ch := newFakeChannel(ident)

	// Prime the slot so there is something to poison.
	_, err := m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, err)

	mismatched := newFakeChannel(other)
	_, err = m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: mismatched, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.Error(t, err)

	_, _, err = m.Get(ident)
	require.Error(t, err)
}

func TestChangeState_PanicLeavesSlotPoisonedNotCrashed(t *testing.T) {
	m := NewMap(nil, nil)
	ident := identOf(5)
	ch := newFakeChannel(ident)
	_, err := m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, err)

	_, err = m.ChangeState(ident, func(old *ChannelState) (*ChannelState, error) {
		panic("boom")
	})
	require.Error(t, err)

	_, _, err = m.Get(ident)
	require.Error(t, err)
}

// Scenario 4 from spec.md §8: w/g removed, y/h retained, 10s returned.
func TestExpireChannels_Scenario(t *testing.T) {
	m := NewMap(nil, nil)

	w := newFakeChannel(identOf('w'))
	w.unused = 181 * time.Second
	y := newFakeChannel(identOf('y'))
	y.unused = 170 * time.Second
	g := newFakeChannel(identOf('g'))
	g.unused = 181 * time.Second
	h := newFakeChannel(identOf('h'))
	h.inUse = true

	for _, c := range []*fakeChannel{w, y, g, h} {
		c := c
		_, err := m.ChangeState(c.ident, func(old *ChannelState) (*ChannelState, error) {
			os := OpenState(OpenEntry{Channel: c, MaxUnusedDuration: 180 * time.Second})
			return &os, nil
		})
		require.NoError(t, err)
	}

	remaining := m.ExpireChannels()
	require.Equal(t, 10*time.Second, remaining)

	_, ok, _ := m.Get(w.ident)
	require.False(t, ok, "w should have been expired")
	_, ok, _ = m.Get(g.ident)
	require.False(t, ok, "g should have been expired")
	_, ok, _ = m.Get(y.ident)
	require.True(t, ok, "y should be retained")
	_, ok, _ = m.Get(h.ident)
	require.True(t, ok, "h should be retained (in use)")
}

func TestExpireChannels_DefaultWhenNothingCloser(t *testing.T) {
	m := NewMap(nil, nil)
	require.Equal(t, DefaultExpiry, m.ExpireChannels())
}

// Scenario 5 from spec.md §8: fan-out exactly once on effective change,
// suppressed on idempotent re-apply.
func TestReconfigureGeneral_FansOutOnceOnChange(t *testing.T) {
	m := NewMap(nil, nil)
	// Prime params so the first netdir application is a genuine change.
	_ = m.params.StartUpdate().PaddingParameters(padding.Parameters{LowMs: 1234, HighMs: 5000}).Finish()

	ch := newFakeChannel(identOf(9))
	_, cerr := m.ChangeState(ch.ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, cerr)

	netdir := &padding.NetDirExtract{NfIto: [2][2]uint32{{1500, 9500}, {9000, 14000}}}

	require.NoError(t, m.ReconfigureGeneral(nil, nil, netdir))
	require.Equal(t, 1, ch.updateCount())
	last := ch.updates[0]
	require.NotNil(t, last.PaddingParameters)
	require.Equal(t, uint32(1500), last.PaddingParameters.LowMs)
	require.Equal(t, uint32(9500), last.PaddingParameters.HighMs)

	// Re-applying the identical netdir must not fan out again.
	require.NoError(t, m.ReconfigureGeneral(nil, nil, netdir))
	require.Equal(t, 1, ch.updateCount())
}

func TestReconfigureGeneral_IgnoresReparameterizeFailureOnClosingChannel(t *testing.T) {
	m := NewMap(nil, nil)
	ch := newFakeChannel(identOf(10))
	ch.reparamErr = errBoom
	_, err := m.ChangeState(ch.ident, func(old *ChannelState) (*ChannelState, error) {
		os := OpenState(OpenEntry{Channel: ch, MaxUnusedDuration: time.Minute})
		return &os, nil
	})
	require.NoError(t, err)

	netdir := &padding.NetDirExtract{NfIto: [2][2]uint32{{1500, 9500}, {9000, 14000}}}
	require.NoError(t, m.ReconfigureGeneral(nil, nil, netdir))
}
