package bine

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
	"github.com/veilmesh/torchan/pkg/channel"
)

// Channel adapts a net.Conn obtained from a Dialer into the AbstractChannel
// capability the channel map coordinates, and additionally exposes the raw
// stream via Stream so the HTTP connector can speak directly over it
// (channel.StreamChannel).
type Channel struct {
	ident Ident
	conn  net.Conn
	log   *logging.Logger

	mu       sync.Mutex
	lastUsed time.Time
	padding  *channel.ParamsUpdate
	closed   bool
}

// Ident aliases channel.Ident so callers don't need a second import for the
// identity type.
type Ident = channel.Ident

// NewChannel wraps conn, already dialed through Tor, as a channel.AbstractChannel.
func NewChannel(ident Ident, conn net.Conn, log *logging.Logger) *Channel {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Channel{ident: ident, conn: conn, log: log.Channel(ident.String()), lastUsed: time.Now()}
}

// Identity implements channel.AbstractChannel.
func (c *Channel) Identity() Ident { return c.ident }

// IsUsable implements channel.AbstractChannel.
func (c *Channel) IsUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// DurationUnused implements channel.AbstractChannel.
func (c *Channel) DurationUnused() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	return time.Since(c.lastUsed), true
}

// Reparameterize implements channel.AbstractChannel. There is no
// cell-framing layer here to carry the negotiation onto the wire; this
// records the update for a caller that inspects Padding.
func (c *Channel) Reparameterize(update *channel.ParamsUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return torerr.ChannelError("reparameterize on closed bine channel", nil)
	}
	c.padding = update
	return nil
}

// Padding returns the most recently applied ParamsUpdate, or nil.
func (c *Channel) Padding() *channel.ParamsUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.padding
}

// NoteUsage implements channel.AbstractChannel.
func (c *Channel) NoteUsage(kind channel.UsageKind) error {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
	return nil
}

// Stream implements channel.StreamChannel.
func (c *Channel) Stream() io.ReadWriter { return c.conn }

// Close closes the underlying connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// DialFunc adapts d into a channel.DialFunc: target.Address is dialed
// through Tor and wrapped as a Channel.
func (d *Dialer) DialFunc() channel.DialFunc {
	return func(ctx context.Context, ident Ident, target channel.Target) (channel.AbstractChannel, error) {
		conn, err := d.DialContext(ctx, "tcp", target.Address)
		if err != nil {
			return nil, torerr.OnionDialFailed("dial "+target.Address+" via tor", err)
		}
		return NewChannel(ident, conn, d.log), nil
	}
}
