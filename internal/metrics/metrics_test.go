package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordDial(t *testing.T) {
	m := New()

	m.RecordDial(true, 10*time.Millisecond)
	m.RecordDial(false, 30*time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, int64(2), snap.DialAttempts)
	require.Equal(t, int64(1), snap.DialSuccess)
	require.Equal(t, int64(1), snap.DialFailures)
	require.Equal(t, 20*time.Millisecond, snap.DialTimeAvg)
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	c.Inc()
	c.Add(4)
	require.Equal(t, int64(5), c.Value())
}

func TestGauge(t *testing.T) {
	g := NewGauge()
	g.Set(7)
	g.Add(-3)
	require.Equal(t, int64(4), g.Value())
}

func TestHistogram_WindowAndPercentile(t *testing.T) {
	h := NewHistogram()
	for i := 1; i <= 100; i++ {
		h.Observe(time.Duration(i) * time.Millisecond)
	}
	require.Equal(t, 100, h.Count())
	require.Equal(t, 95*time.Millisecond, h.Percentile(0.95))
	require.Equal(t, time.Millisecond, h.Percentile(0))
}

func TestHistogram_EmptyIsZero(t *testing.T) {
	h := NewHistogram()
	require.Equal(t, time.Duration(0), h.Mean())
	require.Equal(t, time.Duration(0), h.Percentile(0.5))
}
