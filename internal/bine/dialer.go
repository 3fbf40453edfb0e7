// Package bine provides the optional live-Tor-backed dialer: a thin wrapper
// over cretz/bine (a managed Tor process under our control) and
// golang.org/x/net/proxy (a SOCKS5 dialer against an already-running Tor),
// which a caller can hand to a channel manager as a channel.DialFunc; the
// HTTP connector reaches it only through such a manager. It does not speak the cell-framing protocol; it
// hands back a plain net.Conn that has already traversed the onion network,
// end to end, as far as Tor's own SOCKS interface is concerned.
package bine

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cretz/bine/tor"
	"github.com/veilmesh/torchan/internal/logging"
	"golang.org/x/net/proxy"
)

// Options configures a Dialer.
type Options struct {
	// SocksAddr is the address of an already-running Tor SOCKS5 listener
	// (e.g. "127.0.0.1:9050"). Used unless StartManagedTor is set.
	SocksAddr string

	// StartManagedTor starts and owns a Tor process via cretz/bine instead
	// of dialing an external SOCKS listener.
	StartManagedTor bool

	// DataDirectory is the managed Tor process's data directory. Empty uses
	// bine's own temporary-directory default.
	DataDirectory string

	// StartupTimeout bounds how long NewDialer waits for a managed Tor
	// process to finish bootstrapping.
	StartupTimeout time.Duration
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	clone := *o
	if clone.SocksAddr == "" {
		clone.SocksAddr = "127.0.0.1:9050"
	}
	if clone.StartupTimeout == 0 {
		clone.StartupTimeout = 90 * time.Second
	}
	return &clone
}

// Dialer opens connections to onion (or clearnet, via exit) destinations
// through Tor, either an external process reached over SOCKS5 or one we
// start and manage ourselves.
type Dialer struct {
	managed     *tor.Tor
	proxyDialer proxy.Dialer
	log         *logging.Logger
}

// NewDialer constructs a Dialer per opts.
func NewDialer(ctx context.Context, opts *Options, log *logging.Logger) (*Dialer, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = logging.NewDefault()
	}
	log = log.Component("binedialer")

	d := &Dialer{log: log}

	if opts.StartManagedTor {
		startCtx, cancel := context.WithTimeout(ctx, opts.StartupTimeout)
		defer cancel()

		t, err := tor.Start(startCtx, &tor.StartConf{
			DataDir:         opts.DataDirectory,
			NoAutoSocksPort: false,
		})
		if err != nil {
			return nil, fmt.Errorf("start managed tor: %w", err)
		}
		if err := t.EnableNetwork(startCtx, true); err != nil {
			t.Close()
			return nil, fmt.Errorf("tor bootstrap: %w", err)
		}
		d.managed = t
		log.Info("managed tor process ready")
		return d, nil
	}

	dialer, err := proxy.SOCKS5("tcp", opts.SocksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer for %s: %w", opts.SocksAddr, err)
	}
	d.proxyDialer = dialer
	log.Info("using external tor socks listener", "addr", opts.SocksAddr)
	return d, nil
}

// DialContext opens addr (host:port, typically a .onion hostname) through
// Tor.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.managed != nil {
		managedDialer, err := d.managed.Dialer(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("managed tor dialer: %w", err)
		}
		return managedDialer.DialContext(ctx, network, addr)
	}

	if ctxDialer, ok := d.proxyDialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, network, addr)
	}
	return d.proxyDialer.Dial(network, addr)
}

// Close releases any managed Tor process. A no-op for the external-SOCKS
// case, which owns nothing.
func (d *Dialer) Close() error {
	if d.managed != nil {
		return d.managed.Close()
	}
	return nil
}
