package sinks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/logger"
	"github.com/pure-golang/mailblast/queue"
)

var (
	_ blast.ProgressSink = (*QueueSink)(nil)
	_ blast.StartSink    = (*QueueSink)(nil)
)

type QueueSinkOptions struct {
	Logger  *slog.Logger
	Topic   string        // empty uses the publisher default
	Every   int           // publish every Nth send; the last send is always published
	Buffer  int           // events queued before new sent events are dropped
	Timeout time.Duration // per publish
}

// QueueSink publishes progress events from a background goroutine so workers
// never wait on the broker. Sent events are dropped when the buffer is full;
// started and completed events are not.
type QueueSink struct {
	pub    queue.Publisher
	opts   QueueSinkOptions
	logger *slog.Logger

	events chan Event
	wg     sync.WaitGroup
	once   sync.Once

	runID   atomic.Value
	total   atomic.Int64
	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewQueueSink(pub queue.Publisher, opts *QueueSinkOptions) *QueueSink {
	if opts == nil {
		opts = &QueueSinkOptions{}
	}
	o := *opts
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Every <= 0 {
		o.Every = 1
	}
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}

	s := &QueueSink{
		pub:    pub,
		opts:   o,
		logger: o.Logger.WithGroup("queue_sink"),
		events: make(chan Event, o.Buffer),
	}
	s.runID.Store("")
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *QueueSink) OnStart(runID string, total int) {
	s.runID.Store(runID)
	s.total.Store(int64(total))
	s.events <- newEvent(EventStarted, runID, 0, total)
}

func (s *QueueSink) OnSent(worker int) {
	n := s.sent.Add(1)
	total := s.total.Load()
	if n%int64(s.opts.Every) != 0 && n != total {
		return
	}
	ev := newEvent(EventSent, s.runID.Load().(string), int(n), int(total))
	ev.Worker = worker
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *QueueSink) OnComplete(success bool, info *blast.ErrorInfo) {
	ev := newEvent(EventCompleted, s.runID.Load().(string), int(s.sent.Load()), int(s.total.Load()))
	ev.Success = &success
	ev.Failures = failures(info)
	s.events <- ev
}

// Close publishes what is queued and stops the sink. It returns when the
// queue is drained or ctx is done. Call it after the run is done.
func (s *QueueSink) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.events) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d := s.dropped.Load(); d > 0 {
		s.logger.Warn("progress events dropped", "dropped", d)
	}
	return nil
}

// Dropped is the number of sent events lost to a full buffer.
func (s *QueueSink) Dropped() int64 { return s.dropped.Load() }

// Failed is the number of events the publisher rejected.
func (s *QueueSink) Failed() int64 { return s.failed.Load() }

func (s *QueueSink) loop() {
	defer s.wg.Done()
	for ev := range s.events {
		s.publish(ev)
	}
}

func (s *QueueSink) publish(ev Event) {
	ctx, cancel := context.WithTimeout(logger.NewContext(context.Background(), s.logger), s.opts.Timeout)
	defer cancel()

	err := s.pub.Publish(ctx, queue.Message{
		Topic: s.opts.Topic,
		Key:   ev.RunID,
		Headers: map[string]string{
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		},
		Body: ev,
	})
	if err != nil {
		s.failed.Add(1)
		logger.FromContextWithErr(ctx, err).Warn("failed to publish progress event", "type", ev.Type, "run", ev.RunID)
	}
}
