package blast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/logger"
	"github.com/pure-golang/mailblast/mail"
)

const defaultPollInterval = 5 * time.Second

type Options struct {
	Logger *slog.Logger
	Sink   ProgressSink
	// PollInterval is how often the monitor logs progress.
	PollInterval time.Duration
}

type state int

const (
	stateReady state = iota
	stateRunning
	stateFinished
)

// Result is the terminal state of a run.
type Result struct {
	RunID    string
	Total    int
	Sent     int
	Aborted  bool
	Duration time.Duration
	Failures []WorkerFailure
}

// Success reports whether no worker failed. An aborted run can succeed.
func (r Result) Success() bool {
	return len(r.Failures) == 0
}

// Coordinator runs one Plan. It is single-use.
type Coordinator struct {
	dialer    mail.Dialer
	sink      ProgressSink
	logger    *slog.Logger
	poll      time.Duration
	partition func(total, n int) []int

	mx      sync.Mutex
	state   state
	runID   string
	plan    Plan
	workers []*worker
	aborted bool
	stats   *stats
	result  Result
	err     error

	done chan struct{}
}

// New creates a Coordinator that opens sessions with dialer.
func New(dialer mail.Dialer, options *Options) *Coordinator {
	if options == nil {
		options = &Options{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Sink == nil {
		options.Sink = NopSink{}
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}

	return &Coordinator{
		dialer:    dialer,
		sink:      options.Sink,
		logger:    options.Logger.WithGroup("blast"),
		poll:      options.PollInterval,
		partition: Partition,
		done:      make(chan struct{}),
	}
}

// Submit validates plan, starts the workers and returns. Configuration
// errors are returned before any connection is made; the Coordinator then
// stays ready. A running or finished Coordinator returns ErrNotReady.
// Cancelling ctx aborts the run.
func (c *Coordinator) Submit(ctx context.Context, plan Plan) error {
	workers, err := c.prepare(plan)
	if err != nil {
		return err
	}

	// Called without c.mx held; the run is already marked running.
	if ss, ok := c.sink.(StartSink); ok {
		ss.OnStart(c.runID, c.stats.total)
	}

	l := c.logger.With("run", c.runID)
	ctx = logger.NewContext(ctx, l)
	ctx, span := tracer.Start(ctx, "Coordinator.Run", trace.WithAttributes(
		attribute.String("run.id", c.runID),
		attribute.Int("run.accounts", len(plan.Accounts)),
		attribute.Int("run.total", plan.Total),
		attribute.Int("run.workers", len(workers)),
	))

	reaped := make(chan *worker, len(workers))
	for _, w := range workers {
		go func(w *worker) {
			_ = w.run(ctx)
			reaped <- w
		}(w)
	}
	go c.monitor(ctx, span, reaped, len(workers))
	go func() {
		select {
		case <-ctx.Done():
			l.Warn("context done, aborting", "cause", context.Cause(ctx))
			c.Abort()
		case <-c.done:
		}
	}()

	return nil
}

// prepare validates and partitions plan and moves the Coordinator to the
// running state. runID and stats are not modified after it returns.
func (c *Coordinator) prepare(plan Plan) ([]*worker, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != stateReady {
		return nil, ErrNotReady
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	perAccount := plan.Concurrency.WorkersPer(plan.Total)
	parts := c.partition(plan.Total, perAccount)

	c.plan = plan
	workers := make([]*worker, 0, len(plan.Accounts)*len(parts))
	for a, account := range plan.Accounts {
		for i, assigned := range parts {
			workers = append(workers, newWorker(a*len(parts)+i, account, assigned, &c.plan, c.dialer, c, c.logger))
		}
	}
	if err := preflight(plan, workers); err != nil {
		return nil, err
	}

	c.runID = uuid.NewString()
	c.workers = workers
	c.stats = newStats(plan.Total*len(plan.Accounts), nil)
	c.state = stateRunning
	if c.aborted {
		for _, w := range workers {
			w.abort()
		}
	}

	c.logger.Info("send started",
		"run", c.runID,
		"accounts", len(plan.Accounts),
		"total", plan.Total,
		"workers", len(workers),
		"partition", parts,
		"concurrency", plan.Concurrency.String(),
	)
	return workers, nil
}

// preflight checks that every account is assigned exactly plan.Total sends.
func preflight(plan Plan, workers []*worker) error {
	sums := make(map[string]int, len(plan.Accounts))
	for _, w := range workers {
		sums[w.account.Address] += w.assigned
	}
	for _, a := range plan.Accounts {
		want := plan.Total * countAccount(plan.Accounts, a.Address)
		if got := sums[a.Address]; got != want {
			return errors.Wrapf(ErrEmergencyStop, "account %s: %d assigned, %d requested", a.Address, got, want)
		}
	}
	return nil
}

// countAccount handles plans listing the same address twice.
func countAccount(accounts []mail.Account, address string) int {
	n := 0
	for _, a := range accounts {
		if a.Address == address {
			n++
		}
	}
	return n
}

func (c *Coordinator) monitor(ctx context.Context, span trace.Span, reaped <-chan *worker, live int) {
	l := logger.FromContext(ctx)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	var failures []WorkerFailure
	for live > 0 {
		select {
		case w := <-reaped:
			live--
			st := w.state()
			switch {
			case st.Err != nil:
				workersTotal.WithLabelValues(outcomeFailed).Inc()
				c.stats.recordFailure()
				failures = append(failures, WorkerFailure{
					Worker:   st.Index,
					Account:  st.Account,
					Assigned: st.Assigned,
					Sent:     st.Sent,
					Err:      st.Err,
				})
				logger.FromContextWithErr(ctx, st.Err).Error("worker failed",
					"worker", st.Index, "sent", st.Sent, "assigned", st.Assigned)
			case st.Sent < st.Assigned:
				workersTotal.WithLabelValues(outcomeAborted).Inc()
				l.Debug("worker aborted", "worker", st.Index, "sent", st.Sent, "assigned", st.Assigned)
			default:
				workersTotal.WithLabelValues(outcomeDone).Inc()
				l.Debug("worker done", "worker", st.Index, "sent", st.Sent)
			}
		case <-ticker.C:
			snap := c.stats.snapshot()
			l.Info(snap.Label(),
				"rate", snap.Rate,
				"avg_latency", snap.AvgLatency,
				"eta", snap.ETA,
				"active", snap.ActiveConnections,
				"live_workers", live,
			)
		}
	}

	c.finish(ctx, span, failures)
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, failures []WorkerFailure) {
	snap := c.stats.snapshot()
	info := newErrorInfo(failures)

	c.mx.Lock()
	c.state = stateFinished
	if ctx.Err() != nil {
		c.aborted = true
	}
	c.result = Result{
		RunID:    c.runID,
		Total:    snap.Total,
		Sent:     snap.Sent,
		Aborted:  c.aborted,
		Duration: snap.Elapsed,
		Failures: failures,
	}
	if info != nil {
		c.err = info
	}
	result := c.result
	c.mx.Unlock()

	l := logger.FromContext(ctx)
	if info != nil {
		recordError(span, info)
		l.Error("send finished with failures", "sent", result.Sent, "total", result.Total, "failed_workers", len(failures))
	} else {
		l.Info("send finished", "sent", result.Sent, "total", result.Total, "aborted", result.Aborted, "duration", result.Duration)
	}
	span.SetAttributes(attribute.Int("run.sent", result.Sent), attribute.Bool("run.aborted", result.Aborted))
	span.End()

	c.sink.OnComplete(info == nil, info)
	close(c.done)
}

// Abort asks every worker to stop after its current send. It does not wait.
func (c *Coordinator) Abort() {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.aborted {
		return
	}
	c.aborted = true
	for _, w := range c.workers {
		w.abort()
	}
	if c.state == stateRunning {
		c.logger.Info("abort requested", "run", c.runID)
	}
}

// Done is closed after OnComplete has been delivered.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run finishes or ctx is done. The error is the
// *ErrorInfo of a failed run.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	c.mx.Lock()
	ready := c.state == stateReady
	c.mx.Unlock()
	if ready {
		return Result{}, ErrNotReady
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		return Result{}, errors.WithStack(ctx.Err())
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	return c.result, c.err
}

// Snapshot returns the current progress.
func (c *Coordinator) Snapshot() Snapshot {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.stats == nil {
		return Snapshot{Aborted: c.aborted}
	}
	snap := c.stats.snapshot()
	snap.Workers = len(c.workers)
	snap.Running = c.state == stateRunning
	snap.Done = c.state == stateFinished
	snap.Aborted = c.aborted
	return snap
}

// Workers returns the state of every worker in index order.
func (c *Coordinator) Workers() []WorkerState {
	c.mx.Lock()
	workers := c.workers
	c.mx.Unlock()

	states := make([]WorkerState, len(workers))
	for i, w := range workers {
		states[i] = w.state()
	}
	return states
}

// RunID identifies the run; empty before Submit.
func (c *Coordinator) RunID() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.runID
}

func (c *Coordinator) sent(w *worker, latency time.Duration) {
	c.stats.recordSent(latency)
	c.sink.OnSent(w.index)
}

func (c *Coordinator) opened(*worker) {
	c.stats.connectionOpened()
}

func (c *Coordinator) closed(*worker) {
	c.stats.connectionClosed()
}

func (c *Coordinator) reconnected(w *worker, reason string) {
	reconnectsTotal.WithLabelValues(reason).Inc()
	c.stats.recordReconnect()
	w.logger.Debug("reconnect", "reason", reason)
}
