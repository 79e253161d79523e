package blast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Snapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := newStats(10, func() time.Time { return clock })

	snap := s.snapshot()
	assert.Equal(t, 10, snap.Remaining)
	assert.Zero(t, snap.Rate)
	assert.Zero(t, snap.ETA)

	s.connectionOpened()
	s.recordSent(100 * time.Millisecond)
	s.recordSent(300 * time.Millisecond)
	s.recordReconnect()
	clock = now.Add(2 * time.Second)

	snap = s.snapshot()
	assert.Equal(t, 2, snap.Sent)
	assert.Equal(t, 8, snap.Remaining)
	assert.Equal(t, 200*time.Millisecond, snap.AvgLatency)
	assert.InDelta(t, 1.0, snap.Rate, 1e-9)
	assert.Equal(t, 8*time.Second, snap.ETA)
	assert.Equal(t, clock.Add(8*time.Second), snap.EstimatedCompletion)
	assert.Equal(t, 1, snap.ActiveConnections)
	assert.Equal(t, 1, snap.Reconnects)
	assert.Equal(t, 2*time.Second, snap.Elapsed)

	s.connectionClosed()
	s.recordFailure()
	snap = s.snapshot()
	assert.Zero(t, snap.ActiveConnections)
	assert.Equal(t, 1, snap.Failures)
}

func TestStats_RollingLatency(t *testing.T) {
	t.Parallel()

	s := newStats(1000, nil)
	for i := 0; i < latencyWindow; i++ {
		s.recordSent(time.Second)
	}
	assert.Equal(t, time.Second, s.snapshot().AvgLatency)

	// A full window of faster sends pushes the old ones out.
	for i := 0; i < latencyWindow; i++ {
		s.recordSent(10 * time.Millisecond)
	}
	assert.Equal(t, 10*time.Millisecond, s.snapshot().AvgLatency)
	assert.Equal(t, 2*latencyWindow, s.snapshot().Sent)
}
