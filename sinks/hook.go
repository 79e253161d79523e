package sinks

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/executor"
	"github.com/pure-golang/mailblast/logger"
)

var (
	_ blast.ProgressSink = (*HookSink)(nil)
	_ blast.StartSink    = (*HookSink)(nil)
)

// HookSink runs a command once the run completes, as
//
//	<command> <run id> <done|failed> <sent> <total>
//
// Its output is logged. OnComplete blocks until the command exits.
type HookSink struct {
	exec   executor.Executor
	logger *slog.Logger

	mx    sync.Mutex
	runID string
	total int
	sent  atomic.Int64
}

func NewHookSink(exec executor.Executor, log *slog.Logger) *HookSink {
	if log == nil {
		log = slog.Default()
	}
	return &HookSink{exec: exec, logger: log.WithGroup("hook")}
}

func (s *HookSink) OnStart(runID string, total int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.runID, s.total = runID, total
}

func (s *HookSink) OnSent(int) {
	s.sent.Add(1)
}

func (s *HookSink) OnComplete(success bool, _ *blast.ErrorInfo) {
	s.mx.Lock()
	runID, total := s.runID, s.total
	s.mx.Unlock()

	status := "done"
	if !success {
		status = "failed"
	}
	ctx := logger.NewContext(context.Background(), s.logger.With("run", runID))
	out, err := s.exec.Execute(ctx, runID, status, strconv.FormatInt(s.sent.Load(), 10), strconv.Itoa(total))
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("completion hook failed")
		return
	}
	logger.FromContext(ctx).Info("completion hook finished", "output", string(out))
}
