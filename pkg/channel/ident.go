// Package channel implements the channel map (a concurrency-safe keyed
// table of transport connections to relays) and the channel manager built
// on top of it (dial deduplication, consensus-driven reparameterization,
// idle expiry). See map.go for the map and manager.go for the outer
// manager.
package channel

import "encoding/hex"

// Ident is a channel's identity: in practice a relay's long-term public-key
// fingerprint. It is cheap to copy and compare.
type Ident [32]byte

// String renders the identity as lowercase hex.
func (i Ident) String() string {
	return hex.EncodeToString(i[:])
}

// Target is the destination a dial is attempted against. Only Address is
// interpreted by the channel map itself; everything else is opaque context
// handed through to the injected dial function.
type Target struct {
	Address string
}
