// Package httpconnector turns a URI into an HTTP(S)-over-onion byte stream.
// It resolves the URI's host into an onion identity, opens (or reuses) a
// channel through a channel.Manager, and for https wraps the result in an
// outer TLS handshake distinct from any TLS used to reach the channel's own
// endpoint.
package httpconnector

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
	"github.com/veilmesh/torchan/pkg/channel"
	"github.com/veilmesh/torchan/pkg/onion"
)

// Connector resolves http(s):// URIs into onion-carried byte streams.
type Connector struct {
	manager   *channel.Manager
	tlsConfig *tls.Config
	log       *logging.Logger
}

// New constructs a Connector over mgr. tlsConfig is used (cloned per dial)
// for https requests; a nil value uses Go's default TLS policy plus the
// request's hostname as ServerName.
func New(mgr *channel.Manager, tlsConfig *tls.Config, log *logging.Logger) *Connector {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Connector{manager: mgr, tlsConfig: tlsConfig, log: log.Component("httpconnector")}
}

// Stream is the opaque duplex byte stream returned by Connect: unchanged
// read/write/close semantics over either the bare channel stream or, for
// https, the outer TLS session layered on top of it.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Connect resolves rawURI and returns a duplex stream to it, dialing
// through the channel manager as needed.
func (c *Connector) Connect(ctx context.Context, rawURI string) (Stream, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, torerr.UnsupportedURIScheme(rawURI)
	}

	useTLS, err := schemeToTLS(u)
	if err != nil {
		return nil, err
	}

	host := u.Hostname()
	if host == "" {
		return nil, torerr.MissingHostname(rawURI)
	}

	port := u.Port()
	if port == "" {
		if useTLS {
			port = "443"
		} else {
			port = "80"
		}
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, torerr.MissingHostname(rawURI)
	}

	addr, err := onion.ParseAddress(host)
	if err != nil {
		return nil, torerr.OnionDialFailed(fmt.Sprintf("resolve onion host %q", host), err)
	}

	ident := identFromPubkey(addr.Pubkey)
	target := channel.Target{Address: addr.String() + ":" + port}

	ch, err := c.manager.GetOrLaunch(ctx, ident, target)
	if err != nil {
		return nil, torerr.OnionDialFailed("open onion stream to "+target.Address, err)
	}

	streamCh, ok := ch.(channel.StreamChannel)
	if !ok {
		return nil, torerr.InternalInvariant("channel does not expose a raw stream")
	}
	raw := streamCh.Stream()
	if raw == nil {
		return nil, torerr.OnionDialFailed("channel stream unavailable", nil)
	}

	if err := ch.NoteUsage(channel.UsageUserTraffic); err != nil {
		c.log.Warn("note_usage failed", "error", err)
	}

	duplex, ok := raw.(rwCloser)
	if !ok {
		duplex = &nopCloseRW{raw}
	}

	if !useTLS {
		return duplex, nil
	}

	tlsCfg := c.tlsConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = host
	}

	tlsConn := tls.Client(rwConn{duplex}, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, torerr.TLSFailed("outer tls handshake to "+host, err)
	}
	return tlsConn, nil
}

func schemeToTLS(u *url.URL) (bool, error) {
	switch u.Scheme {
	case "http":
		return false, nil
	case "https":
		return true, nil
	default:
		return false, torerr.UnsupportedURIScheme(u.String())
	}
}

// identFromPubkey derives the channel.Ident the onion address's public key
// maps to. The onion address pubkey is already 32 bytes (ed25519), matching
// Ident's width exactly.
func identFromPubkey(pubkey []byte) channel.Ident {
	var id channel.Ident
	copy(id[:], pubkey)
	return id
}

type rwCloser interface {
	io.Reader
	io.Writer
	io.Closer
}

// nopCloseRW adapts a bare io.ReadWriter (which a channel stream may be,
// when its lifetime is owned by the channel rather than the caller) into a
// Stream whose Close is a no-op: closing the channel itself is the map's
// and manager's responsibility, not an individual stream consumer's.
type nopCloseRW struct {
	io.ReadWriter
}

func (n *nopCloseRW) Close() error { return nil }

// rwConn adapts a Stream to the net.Conn interface crypto/tls.Client
// requires: LocalAddr/RemoteAddr/deadlines are not meaningful for an
// onion-carried stream and are no-ops.
type rwConn struct {
	rwCloser
}

func (rwConn) LocalAddr() net.Addr             { return onionAddr{} }
func (rwConn) RemoteAddr() net.Addr            { return onionAddr{} }
func (rwConn) SetDeadline(time.Time) error     { return nil }
func (rwConn) SetReadDeadline(time.Time) error { return nil }
func (rwConn) SetWriteDeadline(time.Time) error { return nil }

// onionAddr is a placeholder net.Addr: an onion-carried stream has no
// meaningful local/remote socket address at this layer.
type onionAddr struct{}

func (onionAddr) Network() string { return "onion" }
func (onionAddr) String() string  { return "" }
