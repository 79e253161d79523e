package blast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/mail"
)

// WorkerState is a snapshot of one worker.
type WorkerState struct {
	Index          int
	Account        string
	Assigned       int
	Sent           int
	Retries        int
	Done           bool
	AbortRequested bool
	Err            error
}

// events is how a worker reports to its coordinator. Calls come from the
// worker goroutine.
type events interface {
	sent(w *worker, latency time.Duration)
	opened(w *worker)
	closed(w *worker)
	reconnected(w *worker, reason string)
}

// worker sends its assigned count of messages for one account, one at a time.
type worker struct {
	index    int
	account  mail.Account
	assigned int
	plan     *Plan
	dialer   mail.Dialer
	events   events
	logger   *slog.Logger

	abortOnce sync.Once
	abortCh   chan struct{}

	// session is owned by the run goroutine.
	session mail.Session

	mx      sync.Mutex
	sent    int
	retries int
	aborted bool
	done    bool
	err     error
}

func newWorker(index int, account mail.Account, assigned int, plan *Plan, dialer mail.Dialer, ev events, logger *slog.Logger) *worker {
	return &worker{
		index:    index,
		account:  account,
		assigned: assigned,
		plan:     plan,
		dialer:   dialer,
		events:   ev,
		logger:   logger.With("worker", index, "account", account.Address),
		abortCh:  make(chan struct{}),
	}
}

// run sends the assigned messages. It returns nil when all were sent or the
// worker was aborted, and the fatal error otherwise.
func (w *worker) run(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "Worker.Run", trace.WithAttributes(
		attribute.Int("worker.index", w.index),
		attribute.String("worker.account", w.account.Address),
		attribute.Int("worker.assigned", w.assigned),
	))
	defer func() {
		w.closeSession()
		recordError(span, err)
		span.End()
		w.finish(err)
	}()

	if w.plan.Concurrency.Reconnect != ReconnectPerSend && !w.stopped(ctx) {
		if err := w.open(ctx); err != nil {
			if err := w.handle(ctx, err); err != nil {
				return err
			}
		}
	}

	for {
		k := w.sentCount()
		if k >= w.assigned {
			return nil
		}
		if w.stopped(ctx) {
			w.logger.Debug("worker stopped", "sent", k, "assigned", w.assigned)
			return nil
		}

		if w.session != nil && w.reconnectDue(k) {
			w.closeSession()
			w.events.reconnected(w, reasonPolicy)
		}
		if w.session == nil {
			if err := w.open(ctx); err != nil {
				if err := w.handle(ctx, err); err != nil {
					return err
				}
				continue
			}
		}

		if err := w.send(ctx, k+1); err != nil {
			if err := w.handle(ctx, err); err != nil {
				return err
			}
			continue
		}

		if k+1 < w.assigned {
			w.pause(ctx)
		}
	}
}

// handle drops the session after a failed dial or send and decides whether
// the worker goes on. Only disconnects are retried, each one consuming an
// attempt.
func (w *worker) handle(ctx context.Context, err error) error {
	w.closeSession()

	if ctx.Err() != nil {
		return nil
	}
	if !errors.Is(err, mail.ErrDisconnected) {
		return err
	}

	w.mx.Lock()
	w.retries++
	attempts := w.retries
	w.mx.Unlock()

	if attempts > w.plan.RetryCeiling {
		return errors.WithStack(&RetriesExhaustedError{Attempts: attempts, Err: err})
	}

	w.logger.Warn("server disconnected, retrying the rest",
		"attempt", attempts,
		"ceiling", w.plan.RetryCeiling,
		"remaining", w.assigned-w.sentCount(),
		"error", err.Error(),
	)
	w.events.reconnected(w, reasonDisconnect)
	return nil
}

func (w *worker) reconnectDue(k int) bool {
	switch w.plan.Concurrency.Reconnect {
	case ReconnectPerSend:
		return true
	case ReconnectEveryN:
		return k > 0 && k%w.plan.Concurrency.Every == 0
	default:
		return false
	}
}

func (w *worker) open(ctx context.Context) error {
	s, err := w.dialer.Dial(ctx, w.account)
	if err != nil {
		return errors.Wrapf(err, "failed to open session to %s", w.account.Server)
	}
	w.session = s
	activeSessions.Inc()
	w.events.opened(w)
	return nil
}

func (w *worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Debug("failed to close session", "error", err.Error())
	}
	w.session = nil
	activeSessions.Dec()
	w.events.closed(w)
}

// send transmits message number num (1-based within this worker).
func (w *worker) send(ctx context.Context, num int) error {
	msg := w.plan.Message

	start := time.Now()
	err := w.session.Send(ctx, msg.Sender(w.account), w.plan.Recipients, msg.Render(num))
	latency := time.Since(start)
	sendDuration.Observe(latency.Seconds())

	if err != nil {
		sendsTotal.WithLabelValues("error").Inc()
		return errors.Wrapf(err, "failed to send message %d of %d", num, w.assigned)
	}

	w.mx.Lock()
	w.sent++
	w.mx.Unlock()

	sendsTotal.WithLabelValues("ok").Inc()
	w.events.sent(w, latency)
	return nil
}

// pause sleeps the serial-mode delay. Abort and cancellation wake it early.
func (w *worker) pause(ctx context.Context) {
	if w.plan.Concurrency.Mode != ModeSerial || w.plan.Concurrency.Delay <= 0 {
		return
	}
	t := time.NewTimer(w.plan.Concurrency.Delay)
	defer t.Stop()

	select {
	case <-t.C:
	case <-w.abortCh:
	case <-ctx.Done():
	}
}

func (w *worker) abort() {
	w.mx.Lock()
	w.aborted = true
	w.mx.Unlock()
	w.abortOnce.Do(func() { close(w.abortCh) })
}

func (w *worker) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.aborted
}

func (w *worker) sentCount() int {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.sent
}

func (w *worker) finish(err error) {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.err = err
	w.done = true
}

func (w *worker) state() WorkerState {
	w.mx.Lock()
	defer w.mx.Unlock()
	return WorkerState{
		Index:          w.index,
		Account:        w.account.Address,
		Assigned:       w.assigned,
		Sent:           w.sent,
		Retries:        w.retries,
		Done:           w.done,
		AbortRequested: w.aborted,
		Err:            w.err,
	}
}
