package padding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veilmesh/torchan/internal/chanconfig"
)

func TestResolve_NoneAlwaysAllZeroes(t *testing.T) {
	p, err := Resolve(chanconfig.PaddingNone, &NetDirExtract{NfIto: [2][2]uint32{{1500, 9500}, {9000, 14000}}}, nil)
	require.NoError(t, err)
	require.Equal(t, AllZeroes(), p)
}

func TestResolve_NoConsensusUsesNamedDefault(t *testing.T) {
	p, err := Resolve(chanconfig.PaddingNormal, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultNormal(), p)

	p, err = Resolve(chanconfig.PaddingReduced, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultReduced(), p)
}

// Matches scenario 5's fan-out numbers: a netdir that resolves to
// low_ms=1500, high_ms=9500.
func TestResolve_ConsensusValuesUsedWhenValid(t *testing.T) {
	nd := &NetDirExtract{NfIto: [2][2]uint32{{1500, 9500}, {9000, 14000}}}
	p, err := Resolve(chanconfig.PaddingNormal, nd, nil)
	require.NoError(t, err)
	require.Equal(t, Parameters{LowMs: 1500, HighMs: 9500}, p)
}

func TestResolve_LowGreaterThanHighFallsBackToDefault(t *testing.T) {
	nd := &NetDirExtract{NfIto: [2][2]uint32{{9999, 10}, {0, 0}}}
	p, err := Resolve(chanconfig.PaddingNormal, nd, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultNormal(), p)
}
