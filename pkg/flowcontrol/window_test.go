package flowcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tag(b byte) CircTag {
	var t CircTag
	t[0] = b
	return t
}

// sendWindowAt builds a window with start credits remaining, the state a
// live circuit reaches after (Max - start) unacknowledged cells.
func sendWindowAt[T comparable](params WindowParams, start int) *SendWindow[T] {
	return &SendWindow[T]{params: params, window: start}
}

// Scenario 1: circuit window exhaustion and wake-on-put.
func TestSendWindow_ExhaustionAndWake(t *testing.T) {
	w := sendWindowAt[CircTag](CircParams, 100)
	ctx := context.Background()

	var firstBoundaryTag CircTag
	var last int
	for i := 0; i < 100; i++ {
		v, err := w.Take(ctx, tag(byte(i)))
		require.NoError(t, err)
		last = v
		if i == 0 {
			firstBoundaryTag = tag(byte(i))
		}
	}
	require.Equal(t, 0, last)

	done := make(chan int, 1)
	go func() {
		v, err := w.Take(context.Background(), tag(200))
		require.NoError(t, err)
		done <- v
	}()

	// Give the goroutine time to park before unblocking it.
	time.Sleep(20 * time.Millisecond)

	newWindow, ok := w.Put(&firstBoundaryTag)
	require.True(t, ok)
	require.Equal(t, 100, newWindow)

	select {
	case v := <-done:
		require.Equal(t, 99, v)
	case <-time.After(time.Second):
		t.Fatal("parked take was never woken")
	}
}

// Scenario 2: a mismatched ack tag is rejected.
func TestSendWindow_BadAckTag(t *testing.T) {
	w := sendWindowAt[CircTag](CircParams, 100)
	ctx := context.Background()

	// The take at the boundary (window == 100) queues tag A as the one the
	// peer must echo in its next acknowledgement.
	a := tag(0xAA)
	_, err := w.Take(ctx, a)
	require.NoError(t, err)

	b := tag(0xBB)
	_, ok := w.Put(&b)
	require.False(t, ok)
}

func TestSendWindow_StreamUsesUnitTag(t *testing.T) {
	w := NewSendWindow[NoTag](StreamParams)
	ctx := context.Background()
	for i := 0; i < StreamParams.Max; i++ {
		_, err := w.Take(ctx, NoTag{})
		require.NoError(t, err)
	}
	v, ok := w.Put(nil)
	require.True(t, ok)
	require.Equal(t, StreamParams.Increment, v)
}

func TestSendWindow_NeverExceedsMax(t *testing.T) {
	w := NewSendWindow[CircTag](CircParams)
	ctx := context.Background()
	a := tag(1)
	_, err := w.Take(ctx, a)
	require.NoError(t, err)
	// Window is below max; no acks expected yet since we are not at a
	// boundary, so Put without a pending tag must fail closed.
	_, ok := w.Put(&a)
	require.False(t, ok)
}

func TestRecvWindow_UnderflowAndAckBoundary(t *testing.T) {
	w := NewRecvWindow(StreamParams)
	for i := 0; i < StreamParams.Max; i++ {
		sendAck, ok := w.Take()
		require.True(t, ok)
		require.Equal(t, i != 0 && i%StreamParams.Increment == 0, sendAck)
	}
	_, ok := w.Take()
	require.False(t, ok)
}

func TestRecvWindow_PutOverflowPanics(t *testing.T) {
	w := NewRecvWindow(StreamParams)
	require.Panics(t, func() {
		w.Put()
	})
}
