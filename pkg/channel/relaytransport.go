package channel

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/veilmesh/torchan/internal/logging"
	"github.com/veilmesh/torchan/internal/torerr"
	"github.com/veilmesh/torchan/pkg/connection"
)

// RelayTransport adapts a connection.Connection — a TLS link to one relay —
// into the AbstractChannel capability the channel map coordinates. Encoding
// the onion-layer cell protocol on top of the raw byte stream
// connection.Connection.ReadWriter exposes is out of scope here; this
// adapter only tracks the bookkeeping the map and manager need: identity,
// usability, idle duration, and the latest padding parameters pushed down
// from a consensus update.
type RelayTransport struct {
	ident Ident
	conn  *connection.Connection
	log   *logging.Logger

	mu       sync.Mutex
	lastUsed time.Time
	padding  *ParamsUpdate
}

// NewRelayTransport wraps an already-dialed connection as the transport for
// ident.
func NewRelayTransport(ident Ident, conn *connection.Connection, log *logging.Logger) *RelayTransport {
	if log == nil {
		log = logging.NewDefault()
	}
	return &RelayTransport{
		ident:    ident,
		conn:     conn,
		log:      log.Channel(ident.String()),
		lastUsed: time.Now(),
	}
}

// Identity implements AbstractChannel.
func (t *RelayTransport) Identity() Ident { return t.ident }

// IsUsable implements AbstractChannel.
func (t *RelayTransport) IsUsable() bool { return t.conn.IsOpen() }

// DurationUnused implements AbstractChannel. A closed connection reports
// ok=false: it isn't idle, it's gone, and the map's expiry sweep should
// leave removal of dead-but-not-yet-expired entries to NoteUsage-driven
// churn rather than reclaim it on a timer.
func (t *RelayTransport) DurationUnused() (time.Duration, bool) {
	if !t.conn.IsOpen() {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.lastUsed), true
}

// Reparameterize implements AbstractChannel. Negotiating the new padding
// timing onto the wire requires the cell-framing layer, out of scope here;
// this records the update so a caller that does own that layer can read it
// back via Padding.
func (t *RelayTransport) Reparameterize(update *ParamsUpdate) error {
	if !t.conn.IsOpen() {
		return torerr.ChannelError("reparameterize on closed channel", nil)
	}
	t.mu.Lock()
	t.padding = update
	t.mu.Unlock()
	t.log.Debug("applied padding parameter update")
	return nil
}

// Padding returns the most recent ParamsUpdate applied by Reparameterize,
// or nil if none has been applied yet.
func (t *RelayTransport) Padding() *ParamsUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.padding
}

// NoteUsage implements AbstractChannel.
func (t *RelayTransport) NoteUsage(kind UsageKind) error {
	t.mu.Lock()
	t.lastUsed = time.Now()
	t.mu.Unlock()
	return nil
}

// Stream implements StreamChannel, exposing the raw post-handshake byte
// stream to collaborators (the HTTP connector) that speak directly on top
// of this channel.
func (t *RelayTransport) Stream() io.ReadWriter { return t.conn.ReadWriter() }

// Close tears down the underlying connection.
func (t *RelayTransport) Close() error { return t.conn.Close() }

// DialRelay dials and TLS-handshakes a direct link to a relay and wraps it
// as a RelayTransport, the AbstractChannel backing an Open map entry.
// expectedIdent is used only for bookkeeping; matching it against the
// relay's actual identity is a directory-consensus concern above this
// package.
func DialRelay(ctx context.Context, expectedIdent Ident, target Target, log *logging.Logger) (*RelayTransport, error) {
	cfg := connection.DefaultConfig(target.Address)
	conn := connection.New(cfg, log)
	if err := conn.ConnectWithRetry(ctx, cfg, nil); err != nil {
		return nil, torerr.OnionDialFailed("dial relay "+target.Address, err)
	}
	return NewRelayTransport(expectedIdent, conn, log), nil
}
