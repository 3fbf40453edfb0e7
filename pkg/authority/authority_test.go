package authority

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCert struct{ fp Fingerprint }

func (f fakeCert) IdentityFingerprint() Fingerprint { return f.fp }

type fakeKeyIDs struct{ fp Fingerprint }

func (f fakeKeyIDs) IdentityFingerprint() Fingerprint { return f.fp }

func TestAuthority_MatchesCert(t *testing.T) {
	var fp Fingerprint
	fp[0] = 0x42
	a := New("moria1", fp)

	require.True(t, a.MatchesCert(fakeCert{fp: fp}))

	var other Fingerprint
	other[0] = 0x43
	require.False(t, a.MatchesCert(fakeCert{fp: other}))
}

func TestAuthority_MatchesKeyIDs(t *testing.T) {
	var fp Fingerprint
	fp[1] = 0x7
	a := New("dizum", fp)

	require.True(t, a.MatchesKeyIDs(fakeKeyIDs{fp: fp}))

	var other Fingerprint
	require.False(t, a.MatchesKeyIDs(fakeKeyIDs{fp: other}))
}
