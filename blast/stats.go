package blast

import (
	"sync"
	"time"
)

const latencyWindow = 50

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Total             int // over all accounts
	Sent              int
	Remaining         int
	Workers           int
	ActiveConnections int
	Reconnects        int
	Failures          int

	AvgLatency          time.Duration // over the last sends
	Rate                float64       // sends per second since start
	ETA                 time.Duration
	EstimatedCompletion time.Time

	StartedAt time.Time
	Elapsed   time.Duration

	Running bool
	Done    bool
	Aborted bool
}

// Label formats the progress as "Sent: n / total".
func (s Snapshot) Label() string {
	return ProgressLabel(s.Sent, s.Total)
}

// stats aggregates progress reported by workers.
type stats struct {
	mx  sync.Mutex
	now func() time.Time

	total      int
	sent       int
	active     int
	reconnects int
	failures   int
	started    time.Time

	latencies [latencyWindow]time.Duration
	count     int // filled slots
	next      int
	sum       time.Duration
}

func newStats(total int, now func() time.Time) *stats {
	if now == nil {
		now = time.Now
	}
	return &stats{total: total, now: now, started: now()}
}

func (s *stats) recordSent(latency time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.sent++
	if s.count == latencyWindow {
		s.sum -= s.latencies[s.next]
	} else {
		s.count++
	}
	s.latencies[s.next] = latency
	s.sum += latency
	s.next = (s.next + 1) % latencyWindow
}

func (s *stats) connectionOpened() {
	s.mx.Lock()
	s.active++
	s.mx.Unlock()
}

func (s *stats) connectionClosed() {
	s.mx.Lock()
	s.active--
	s.mx.Unlock()
}

func (s *stats) recordReconnect() {
	s.mx.Lock()
	s.reconnects++
	s.mx.Unlock()
}

func (s *stats) recordFailure() {
	s.mx.Lock()
	s.failures++
	s.mx.Unlock()
}

func (s *stats) snapshot() Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()

	now := s.now()
	snap := Snapshot{
		Total:             s.total,
		Sent:              s.sent,
		Remaining:         s.total - s.sent,
		ActiveConnections: s.active,
		Reconnects:        s.reconnects,
		Failures:          s.failures,
		StartedAt:         s.started,
		Elapsed:           now.Sub(s.started),
	}
	if s.count > 0 {
		snap.AvgLatency = s.sum / time.Duration(s.count)
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 && s.sent > 0 {
		snap.Rate = float64(s.sent) / secs
		snap.ETA = time.Duration(float64(snap.Remaining) / snap.Rate * float64(time.Second))
		snap.EstimatedCompletion = now.Add(snap.ETA)
	}
	return snap
}
