// Package flowcontrol implements the circuit- and stream-level flow-control
// credit windows driven by SENDME acknowledgement cells. A circuit window is
// authenticated: every cell sent at an increment boundary queues a 20-byte
// tag that the peer's acknowledgement must echo. A stream window carries no
// tag at all; the same credit bookkeeping applies with a unit placeholder.
package flowcontrol

import (
	"context"
	"sync"

	"github.com/veilmesh/torchan/internal/torerr"
)

// CircTag is the 20-byte cryptographic tag a circuit's relay-crypto layer
// produces for the cell sent at each increment boundary.
type CircTag [20]byte

// NoTag is the unit tag used by stream-level windows, which carry no
// authentication at all.
type NoTag struct{}

// WindowParams fixes the MAX and INCREMENT for one flavor of window.
type WindowParams struct {
	Max       int
	Increment int
}

// CircParams is the default circuit-level window sizing.
var CircParams = WindowParams{Max: 1000, Increment: 100}

// StreamParams is the default stream-level window sizing.
var StreamParams = WindowParams{Max: 500, Increment: 50}

// SendWindow is the send-side credit counter for one circuit or stream. The
// zero value is not usable; construct with NewSendWindow. T is CircTag for
// circuit windows, NoTag for stream windows.
type SendWindow[T comparable] struct {
	mu       sync.Mutex
	params   WindowParams
	window   int
	tags     []T
	unblock  chan struct{}
}

// NewSendWindow constructs a send window starting at params.Max credits.
func NewSendWindow[T comparable](params WindowParams) *SendWindow[T] {
	return &SendWindow[T]{params: params, window: params.Max}
}

// Take consumes one credit for an outgoing cell tagged with tag, blocking
// until credit is available. It returns the window value after the
// decrement. It returns ctx's error if ctx is canceled while parked; in that
// case no credit is lost, since Put always adds credit back unconditionally
// regardless of whether anyone is listening. It returns an InternalInvariant
// error if another Take is already parked on the same window.
func (w *SendWindow[T]) Take(ctx context.Context, tag T) (int, error) {
	for {
		w.mu.Lock()
		old := w.window
		if old%w.params.Increment == 0 && old != w.params.Max {
			w.tags = append(w.tags, tag)
		}
		if old > 0 {
			w.window = old - 1
			w.mu.Unlock()
			return old - 1, nil
		}

		if w.unblock != nil {
			w.mu.Unlock()
			return 0, torerr.InternalInvariant("send window: unblock already parked")
		}
		ch := make(chan struct{})
		w.unblock = ch
		w.mu.Unlock()

		select {
		case <-ch:
			// woken by Put; loop and retry the take from the top.
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Put ingests an acknowledgement. tag is nil for stream windows or for a
// legacy peer that omits the tag. It returns the new window value, or
// ok=false if the caller should tear down the circuit/stream (a mismatched
// tag, an unexpected ack with no outstanding tag, or window overflow).
func (w *SendWindow[T]) Put(tag *T) (newWindow int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.tags) == 0 {
		return 0, false
	}
	expected := w.tags[0]
	w.tags = w.tags[1:]

	if tag != nil && expected != *tag {
		return 0, false
	}

	window := w.window + w.params.Increment
	if window > w.params.Max {
		return 0, false
	}
	w.window = window

	if w.unblock != nil {
		close(w.unblock)
		w.unblock = nil
	}
	return window, true
}

// RecvWindow is the receive-side bookkeeping counter: a bare credit count
// with no tag queue, since the local side never needs to authenticate its
// own acknowledgements.
type RecvWindow struct {
	mu     sync.Mutex
	params WindowParams
	window int
}

// NewRecvWindow constructs a receive window starting at params.Max credits.
func NewRecvWindow(params WindowParams) *RecvWindow {
	return &RecvWindow{params: params, window: params.Max}
}

// Take accounts for one incoming cell. ok is false if the peer sent more
// cells than our window allowed (peer-sourced, not a bug). sendAck is true
// iff a SENDME acknowledgement must now be sent back to the peer, using the
// same increment-boundary rule as the send side.
func (w *RecvWindow) Take() (sendAck bool, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.window == 0 {
		return false, false
	}
	old := w.window
	w.window = old - 1
	sendAck = old%w.params.Increment == 0 && old != w.params.Max
	return sendAck, true
}

// Put credits the window after sending an acknowledgement. Overflow here is
// entirely host-caused (we would have had to send more acks than the window
// could ever have room for) so it panics rather than returning an error.
func (w *RecvWindow) Put() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	window := w.window + w.params.Increment
	if window > w.params.Max {
		panic(torerr.InternalInvariant("recv window: overflow on Put, fatal precondition violation"))
	}
	w.window = window
	return window
}
