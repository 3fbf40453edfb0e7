// Package authority implements the minimal directory-authority trust
// anchor: a nickname paired with a long-term v3 identity fingerprint, and
// the two predicates used to recognize that authority's signing material.
package authority

// Fingerprint is an RSA identity-key fingerprint, as carried on an
// authority certificate or a certificate's key-id set.
type Fingerprint [20]byte

// Cert is the subset of an authority certificate's fields this package
// needs to verify: its own identity-key fingerprint.
type Cert interface {
	IdentityFingerprint() Fingerprint
}

// KeyIDs is the subset of an authority certificate's advertised key-id set
// this package needs: the identity-key fingerprint it claims.
type KeyIDs interface {
	IdentityFingerprint() Fingerprint
}

// Authority is a single trusted directory authority.
type Authority struct {
	Name    string
	V3Ident Fingerprint
}

// New constructs an Authority record.
func New(name string, v3ident Fingerprint) Authority {
	return Authority{Name: name, V3Ident: v3ident}
}

// MatchesCert reports whether cert was signed by this authority's identity
// key, by comparing fingerprints only.
func (a Authority) MatchesCert(cert Cert) bool {
	return a.V3Ident == cert.IdentityFingerprint()
}

// MatchesKeyIDs reports whether a certificate's advertised key-id set
// names this authority's identity key.
func (a Authority) MatchesKeyIDs(ids KeyIDs) bool {
	return a.V3Ident == ids.IdentityFingerprint()
}
