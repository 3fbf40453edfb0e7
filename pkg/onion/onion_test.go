package onion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validV3Pubkey() []byte {
	pk := make([]byte, V3PubkeyLen)
	for i := range pk {
		pk[i] = byte(i)
	}
	return pk
}

func TestEncodeThenParseRoundTrips(t *testing.T) {
	addr := &Address{Version: V3, Pubkey: validV3Pubkey()}
	encoded := addr.Encode()
	require.True(t, strings.HasSuffix(encoded, V3Suffix))

	parsed, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, V3, parsed.Version)
	require.Equal(t, addr.Pubkey, parsed.Pubkey)
}

func TestParseAddress_WrongLength(t *testing.T) {
	_, err := ParseAddress("tooshort.onion")
	require.Error(t, err)
}

func TestParseAddress_BadChecksum(t *testing.T) {
	addr := &Address{Version: V3, Pubkey: validV3Pubkey()}
	encoded := addr.Encode()
	// Flip a character inside the base32 payload to corrupt the checksum.
	// ParseAddress is case-insensitive, so the replacement must differ from
	// the original character ignoring case.
	corrupted := "A" + encoded[1:]
	if strings.EqualFold(corrupted, encoded) {
		corrupted = "B" + encoded[1:]
	}
	_, err := ParseAddress(corrupted)
	require.Error(t, err)
}

func TestIsOnionAddress(t *testing.T) {
	require.True(t, IsOnionAddress("example.onion"))
	require.False(t, IsOnionAddress("example.com"))
}

func TestString_PrefersRawOverReencoding(t *testing.T) {
	addr := &Address{Version: V3, Pubkey: validV3Pubkey(), Raw: "rawvalue.onion"}
	require.Equal(t, "rawvalue.onion", addr.String())
}
