// Package microdesc parses Tor microdescriptors: the compact, signed,
// infrequently-changing per-relay summaries directory authorities publish
// and clients use for path selection. A microdescriptor is a line-oriented
// document of typed keywords; this package tokenizes one out of a
// concatenated bulk-fetch stream and decodes its typed fields.
package microdesc

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/veilmesh/torchan/internal/torerr"
)

const (
	onionKeyLine   = "onion-key"
	ntorOnionKeyKW = "ntor-onion-key"
	familyKW       = "family"
	p4KW           = "p"
	p6KW           = "p6"
	idKW           = "id"
	lastListedKW   = "last-listed"

	// lastListedLayout is the timestamp format of the last-listed
	// annotation: an ISO 8601 date and time with a space separator, always
	// UTC.
	lastListedLayout = "2006-01-02 15:04:05"

	rsaOnionKeyBits = 1024
	rsaOnionKeyExp  = 65537
)

// isAnnotationLine reports whether a trimmed line belongs to the optional
// annotation section prepended when a microdescriptor is stored to disk.
// Annotation keywords carry a leading "@" on disk; last-listed is also
// accepted bare. Unrecognized "@"-keywords are annotations too, tolerated
// and skipped.
func isAnnotationLine(trimmed string) bool {
	if strings.HasPrefix(trimmed, "@") {
		return true
	}
	fields := strings.Fields(trimmed)
	return len(fields) > 0 && fields[0] == lastListedKW
}

// PortPolicy is a relay's accept/reject port policy for one address family.
// The zero value is the default reject-all policy.
type PortPolicy struct {
	Accept bool
	Ports  string
}

// RejectAllPolicy is the default when a descriptor omits p/p6.
func RejectAllPolicy() PortPolicy {
	return PortPolicy{Accept: false, Ports: ""}
}

// Microdesc is one parsed microdescriptor.
type Microdesc struct {
	// SHA256 is the digest of the descriptor's own text, computed from the
	// byte offset of its leading "onion-key" token to the end of its slice.
	SHA256 [32]byte

	// TAPOnionKey is the legacy RSA-1024 onion key (exponent 65537).
	TAPOnionKey *rsa.PublicKey

	// NtorOnionKey is the 32-byte curve25519 ntor handshake key.
	NtorOnionKey [32]byte

	Family     []string
	IPv4Policy PortPolicy
	IPv6Policy PortPolicy

	// Ed25519ID is set only if an "id ed25519 <base64>" line is present.
	Ed25519ID *[32]byte

	// LastListed is set only if a "last-listed <ISO8601>" annotation
	// preceded the descriptor body, as happens when the document was read
	// back from an on-disk cache.
	LastListed *time.Time
}

// ParseAll tokenizes a concatenated bulk document into individual
// microdescriptors. Tokenization pauses at any annotation line or at a
// second "onion-key" line, so each returned slice begins at its own
// annotation section (if any) or at its leading onion-key token — this is
// what lets one pass over a whole directory-authority response or an
// annotated on-disk cache.
func ParseAll(doc string) ([]*Microdesc, error) {
	starts := chunkStarts(doc)
	if len(starts) == 0 {
		return nil, torerr.ParseError(onionKeyLine, errMissingToken(onionKeyLine))
	}

	descs := make([]*Microdesc, 0, len(starts))
	for i, start := range starts {
		end := len(doc)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		md, err := Parse(doc[start:end])
		if err != nil {
			return nil, err
		}
		descs = append(descs, md)
	}
	return descs, nil
}

// chunkStarts returns the byte offset at which each microdescriptor begins:
// the first line of the annotation run immediately preceding its onion-key,
// or the onion-key line itself when nothing is prepended. Annotations
// encountered after a body line therefore open the next chunk, which is the
// pause-at-annotation-or-second-onion-key boundary rule.
func chunkStarts(doc string) []int {
	var starts []int
	annStart := -1
	offset := 0
	for _, line := range splitKeepEnds(doc) {
		trimmed := strings.TrimRight(line, "\n")
		switch {
		case isAnnotationLine(trimmed):
			if annStart < 0 {
				annStart = offset
			}
		case trimmed == onionKeyLine:
			if annStart >= 0 {
				starts = append(starts, annStart)
				annStart = -1
			} else {
				starts = append(starts, offset)
			}
		default:
			annStart = -1
		}
		offset += len(line)
	}
	return starts
}

// splitKeepEnds splits s into lines, each retaining its trailing newline
// (except possibly the last), so offsets can be reconstructed by summing
// line lengths.
func splitKeepEnds(s string) []string {
	var lines []string
	for len(s) > 0 {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			lines = append(lines, s[:idx+1])
			s = s[idx+1:]
		} else {
			lines = append(lines, s)
			s = ""
		}
	}
	return lines
}

// Parse parses a single microdescriptor's text, optionally preceded by its
// annotation section (no trailing descriptors concatenated after it — use
// ParseAll for a bulk stream). After any annotations, the first line must
// be "onion-key". The descriptor's SHA-256 covers the byte range from the
// onion-key keyword to the end of the slice; annotations are excluded.
func Parse(s string) (*Microdesc, error) {
	lines := splitKeepEnds(s)

	lastListed, lines, bodyOffset, err := parseAnnotations(lines)
	if err != nil {
		return nil, err
	}
	body := s[bodyOffset:]

	if len(lines) == 0 || strings.TrimRight(lines[0], "\n") != onionKeyLine {
		return nil, torerr.ParseError(onionKeyLine, errMissingToken(onionKeyLine))
	}

	pemBlock, rest, err := extractPEMObject(lines[1:], "RSA PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	tapKey, err := parseRSAOnionKey(pemBlock)
	if err != nil {
		return nil, err
	}

	var (
		ntorKey    *[32]byte
		family     []string
		ipv4Policy = RejectAllPolicy()
		ipv6Policy = RejectAllPolicy()
		ed25519ID  *[32]byte
	)

	for _, raw := range rest {
		line := strings.TrimRight(raw, "\n")
		if line == "" {
			continue
		}
		if isAnnotationLine(line) || line == onionKeyLine {
			// A descriptor boundary inside a single-descriptor parse: the
			// caller handed us a concatenated stream without slicing it.
			return nil, torerr.ParseError(onionKeyLine,
				errMalformed("descriptor boundary inside single-descriptor parse"))
		}
		fields := strings.Fields(line)
		kw := fields[0]
		switch {
		case kw == ntorOnionKeyKW:
			if len(fields) < 2 {
				return nil, torerr.ParseError(ntorOnionKeyKW, errMalformed(ntorOnionKeyKW))
			}
			key, err := decodeCurve25519Key(fields[1])
			if err != nil {
				return nil, torerr.ParseError(ntorOnionKeyKW, err)
			}
			ntorKey = key
		case kw == familyKW:
			family = append([]string{}, fields[1:]...)
		case kw == p4KW:
			if len(fields) < 3 {
				return nil, torerr.ParseError(p4KW, errMalformed(p4KW))
			}
			ipv4Policy = PortPolicy{Accept: fields[1] == "accept", Ports: fields[2]}
		case kw == p6KW:
			if len(fields) < 3 {
				return nil, torerr.ParseError(p6KW, errMalformed(p6KW))
			}
			ipv6Policy = PortPolicy{Accept: fields[1] == "accept", Ports: fields[2]}
		case kw == idKW:
			if len(fields) < 3 {
				return nil, torerr.ParseError(idKW, errMalformed(idKW))
			}
			if fields[1] == "ed25519" {
				key, err := decodeEd25519Key(fields[2])
				if err != nil {
					return nil, torerr.ParseError(idKW, err)
				}
				ed25519ID = key
			}
		}
	}

	if ntorKey == nil {
		return nil, torerr.ParseError(ntorOnionKeyKW, errMissingToken(ntorOnionKeyKW))
	}

	md := &Microdesc{
		SHA256:       sha256Of(body),
		TAPOnionKey:  tapKey,
		NtorOnionKey: *ntorKey,
		Family:       family,
		IPv4Policy:   ipv4Policy,
		IPv6Policy:   ipv6Policy,
		Ed25519ID:    ed25519ID,
		LastListed:   lastListed,
	}
	return md, nil
}

// parseAnnotations consumes the optional annotation section: the run of
// annotation lines before the first body keyword. It returns the parsed
// last-listed time (nil if absent), the remaining lines, and the byte
// offset of the body within the original slice.
func parseAnnotations(lines []string) (*time.Time, []string, int, error) {
	var lastListed *time.Time
	offset := 0
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], "\n")
		if !isAnnotationLine(trimmed) {
			break
		}
		fields := strings.Fields(trimmed)
		if strings.TrimPrefix(fields[0], "@") == lastListedKW {
			if len(fields) < 3 {
				return nil, nil, 0, torerr.ParseError(lastListedKW, errMalformed(lastListedKW))
			}
			when, err := time.ParseInLocation(lastListedLayout, fields[1]+" "+fields[2], time.UTC)
			if err != nil {
				return nil, nil, 0, torerr.ParseError(lastListedKW, err)
			}
			lastListed = &when
		}
		// Unrecognized annotations are tolerated and skipped.
		offset += len(lines[i])
	}
	return lastListed, lines[i:], offset, nil
}

// extractPEMObject finds a "-----BEGIN <label>-----" ... "-----END
// <label>-----" block in lines, immediately following the keyword line
// (microdesc's onion-key rule requires obj_required with no intervening
// tokens), and returns the decoded block plus the remaining lines.
func extractPEMObject(lines []string, label string) (*pem.Block, []string, error) {
	begin := "-----BEGIN " + label + "-----"
	end := "-----END " + label + "-----"

	if len(lines) == 0 || strings.TrimRight(lines[0], "\n") != begin {
		return nil, nil, torerr.ParseError(onionKeyLine, errMissingToken("PEM object"))
	}

	var raw strings.Builder
	i := 1
	for ; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], "\n")
		raw.WriteString(lines[i])
		if trimmed == end {
			i++
			break
		}
	}
	block, _ := pem.Decode([]byte(begin + "\n" + raw.String()))
	if block == nil {
		return nil, nil, torerr.ParseError(onionKeyLine, errMalformed("PEM object"))
	}
	return block, lines[i:], nil
}

func parseRSAOnionKey(block *pem.Block) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, torerr.ParseError(onionKeyLine, err)
	}
	if key.N.BitLen() != rsaOnionKeyBits {
		return nil, torerr.ParseError(onionKeyLine, errMalformed("onion-key: expected 1024-bit RSA key"))
	}
	if key.E != rsaOnionKeyExp {
		return nil, torerr.ParseError(onionKeyLine, errMalformed("onion-key: expected exponent 65537"))
	}
	return key, nil
}

func decodeCurve25519Key(b64 string) (*[32]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != curve25519.PointSize {
		return nil, errMalformed("ntor-onion-key: wrong length")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func decodeEd25519Key(b64 string) (*[32]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errMalformed("id ed25519: wrong length")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
