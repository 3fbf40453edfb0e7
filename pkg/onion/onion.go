// Package onion parses and encodes v3 (ed25519-based) .onion addresses.
// It is deliberately narrow: everything else the onion-service protocol
// involves (descriptors, introduction points, rendezvous) is relay-side or
// hidden-service-side behavior out of scope for this client runtime; the
// HTTP connector only ever needs to turn a hostname into the 32-byte
// identity key it dials through the channel manager.
package onion

import (
	"crypto/sha3"
	"encoding/base32"
	"fmt"
	"strings"
)

const (
	// V3AddressLength is the length of the base32 portion of a v3 address.
	V3AddressLength = 56
	// V3Suffix is the standard onion-address suffix.
	V3Suffix = ".onion"
	// V3Version is the version byte a v3 address must carry.
	V3Version = 0x03
	// V3ChecksumLen is the length, in bytes, of the embedded checksum.
	V3ChecksumLen = 2
	// V3PubkeyLen is the length, in bytes, of the embedded ed25519 public key.
	V3PubkeyLen = 32
)

// AddressVersion identifies the onion-service address format.
type AddressVersion int

// V3 is the only address version this package parses.
const V3 AddressVersion = 3

// Address is a parsed .onion address.
type Address struct {
	Version AddressVersion
	Pubkey  []byte // 32-byte ed25519 public key
	Raw     string // original address string, with .onion suffix
}

// ParseAddress parses and validates a .onion hostname. Only v3 (56
// characters plus the .onion suffix) is supported.
func ParseAddress(addr string) (*Address, error) {
	trimmed := strings.TrimSuffix(addr, V3Suffix)

	if len(trimmed) == V3AddressLength {
		return parseV3Address(trimmed)
	}

	return nil, fmt.Errorf("unsupported onion address format: must be 56 characters (v3)")
}

// parseV3Address parses the base32 payload of a v3 address:
// pubkey(32) || checksum(2) || version(1).
func parseV3Address(addr string) (*Address, error) {
	decoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	decoded, err := decoder.DecodeString(strings.ToUpper(addr))
	if err != nil {
		return nil, fmt.Errorf("invalid base32 encoding: %w", err)
	}

	if len(decoded) != V3PubkeyLen+V3ChecksumLen+1 {
		return nil, fmt.Errorf("invalid v3 address length: expected 35 bytes, got %d", len(decoded))
	}

	pubkey := decoded[0:V3PubkeyLen]
	checksum := decoded[V3PubkeyLen : V3PubkeyLen+V3ChecksumLen]
	version := decoded[V3PubkeyLen+V3ChecksumLen]

	if version != V3Version {
		return nil, fmt.Errorf("invalid version byte: expected 0x03, got 0x%02x", version)
	}

	expectedChecksum := computeV3Checksum(pubkey, version)
	if checksum[0] != expectedChecksum[0] || checksum[1] != expectedChecksum[1] {
		return nil, fmt.Errorf("invalid checksum")
	}

	return &Address{
		Version: V3,
		Pubkey:  pubkey,
		Raw:     addr + V3Suffix,
	}, nil
}

// computeV3Checksum computes SHA3-256(".onion checksum" || pubkey || version)[:2].
func computeV3Checksum(pubkey []byte, version byte) []byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pubkey)
	h.Write([]byte{version})
	return h.Sum(nil)[:2]
}

// String returns the full .onion address.
func (a *Address) String() string {
	if a.Raw != "" {
		return a.Raw
	}
	return a.Encode()
}

// Encode encodes the address back to .onion format.
func (a *Address) Encode() string {
	if a.Version != V3 {
		return ""
	}

	checksum := computeV3Checksum(a.Pubkey, V3Version)
	data := make([]byte, 0, V3PubkeyLen+V3ChecksumLen+1)
	data = append(data, a.Pubkey...)
	data = append(data, checksum...)
	data = append(data, V3Version)

	encoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(encoder.EncodeToString(data)) + V3Suffix
}

// IsOnionAddress reports whether addr looks like a .onion hostname.
func IsOnionAddress(addr string) bool {
	return strings.HasSuffix(addr, V3Suffix)
}
