package blast

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ProgressSink receives progress from a running Coordinator. OnSent is called
// from worker goroutines concurrently. OnComplete is called once, after the
// last worker has stopped.
type ProgressSink interface {
	OnSent(worker int)
	// OnComplete reports the terminal state. info is nil on success and on a
	// clean abort.
	OnComplete(success bool, info *ErrorInfo)
}

// StartSink is implemented by sinks that want the run identity before the
// first send. OnStart is called once from Submit and must not call back into
// the Coordinator.
type StartSink interface {
	OnStart(runID string, total int)
}

// NopSink ignores progress.
type NopSink struct{}

func (NopSink) OnSent(int)                  {}
func (NopSink) OnComplete(bool, *ErrorInfo) {}

// MultiSink fans progress out to several sinks in order.
type MultiSink []ProgressSink

func (m MultiSink) OnStart(runID string, total int) {
	for _, s := range m {
		if ss, ok := s.(StartSink); ok {
			ss.OnStart(runID, total)
		}
	}
}

func (m MultiSink) OnSent(worker int) {
	for _, s := range m {
		s.OnSent(worker)
	}
}

func (m MultiSink) OnComplete(success bool, info *ErrorInfo) {
	for _, s := range m {
		s.OnComplete(success, info)
	}
}

// LogSink logs "Sent: n / total" roughly every twentieth of the batch.
type LogSink struct {
	logger *slog.Logger
	total  int
	step   int64
	sent   atomic.Int64
}

// NewLogSink creates a LogSink for a batch of total messages over all accounts.
func NewLogSink(logger *slog.Logger, total int) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger: logger,
		total:  total,
		step:   int64(max(1, total/20)),
	}
}

func (s *LogSink) OnSent(worker int) {
	n := s.sent.Add(1)
	if n%s.step == 0 || n == int64(s.total) {
		s.logger.Info(ProgressLabel(int(n), s.total), "worker", worker)
	}
}

func (s *LogSink) OnComplete(success bool, info *ErrorInfo) {
	if success {
		s.logger.Info("send complete", "sent", s.sent.Load(), "total", s.total)
		return
	}
	if info == nil {
		s.logger.Error("send failed", "sent", s.sent.Load(), "total", s.total)
		return
	}
	for _, f := range info.Failures {
		s.logger.Error("worker failed",
			"worker", f.Worker,
			"account", f.Account,
			"sent", f.Sent,
			"assigned", f.Assigned,
			"error", f.Err.Error(),
		)
	}
	s.logger.Error("send failed", "sent", s.sent.Load(), "total", s.total, "error", info.Error())
}

// ProgressLabel formats progress the way it is shown to operators.
func ProgressLabel(sent, total int) string {
	return fmt.Sprintf("Sent: %d / %d", sent, total)
}
