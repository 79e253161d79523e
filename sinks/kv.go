package sinks

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/kv"
	"github.com/pure-golang/mailblast/logger"
)

var (
	_ blast.ProgressSink = (*KVSink)(nil)
	_ blast.StartSink    = (*KVSink)(nil)
)

type KVSinkOptions struct {
	Logger  *slog.Logger
	Prefix  string        // key prefix, "mailblast" by default
	TTL     time.Duration // applied to run keys; 0 keeps them
	Timeout time.Duration // per store call
}

// KVSink mirrors a run into a store:
//
//	<prefix>:runs                   set of run ids
//	<prefix>:latest                 id of the last started run
//	<prefix>:run:<id>               hash: status, total, sent, label, started_at, finished_at, w<i>
//
// label is written at start and completion; sent and w<i> count live.
//
//	<prefix>:run:<id>:failures      list of failure messages
//
// KVReader reads the same layout back.
type KVSink struct {
	store  kv.Store
	opts   KVSinkOptions
	logger *slog.Logger

	mx    sync.RWMutex
	runID string
	total int
	sent  atomic.Int64
}

func NewKVSink(store kv.Store, opts *KVSinkOptions) *KVSink {
	if opts == nil {
		opts = &KVSinkOptions{}
	}
	o := *opts
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Prefix == "" {
		o.Prefix = "mailblast"
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	return &KVSink{store: store, opts: o, logger: o.Logger.WithGroup("kv_sink")}
}

// RunKey is the hash key of a run.
func (s *KVSink) RunKey(runID string) string {
	return runKey(s.opts.Prefix, runID)
}

func (s *KVSink) FailuresKey(runID string) string {
	return failuresKey(s.opts.Prefix, runID)
}

func (s *KVSink) RunsKey() string {
	return runsKey(s.opts.Prefix)
}

func runKey(prefix, runID string) string      { return prefix + ":run:" + runID }
func failuresKey(prefix, runID string) string { return runKey(prefix, runID) + ":failures" }
func runsKey(prefix string) string            { return prefix + ":runs" }
func latestKey(prefix string) string          { return prefix + ":latest" }

func (s *KVSink) OnStart(runID string, total int) {
	s.mx.Lock()
	s.runID, s.total = runID, total
	s.mx.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	key := s.RunKey(runID)
	s.check(ctx, s.store.SAdd(ctx, s.RunsKey(), runID), "sadd")
	s.check(ctx, s.store.Set(ctx, latestKey(s.opts.Prefix), runID, s.opts.TTL), "set")
	s.check(ctx, s.store.HSet(ctx, key, map[string]any{
		"status":     "running",
		"total":      total,
		"sent":       0,
		"label":      blast.ProgressLabel(0, total),
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}), "hset")
	s.expire(ctx, key)
}

func (s *KVSink) OnSent(worker int) {
	runID, _ := s.run()
	if runID == "" {
		return
	}
	ctx, cancel := s.ctx()
	defer cancel()

	key := s.RunKey(runID)
	s.sent.Add(1)
	_, err := s.store.HIncrBy(ctx, key, "sent", 1)
	if !s.check(ctx, err, "hincrby") {
		return
	}
	_, err = s.store.HIncrBy(ctx, key, "w"+strconv.Itoa(worker), 1)
	s.check(ctx, err, "hincrby")
}

func (s *KVSink) OnComplete(success bool, info *blast.ErrorInfo) {
	runID, total := s.run()
	if runID == "" {
		return
	}
	ctx, cancel := s.ctx()
	defer cancel()

	status := "done"
	if !success {
		status = "failed"
	}
	key := s.RunKey(runID)
	s.check(ctx, s.store.HSet(ctx, key, map[string]any{
		"status":      status,
		"label":       blast.ProgressLabel(int(s.sent.Load()), total),
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	}), "hset")

	if fs := failures(info); len(fs) > 0 {
		values := make([]any, len(fs))
		for i, f := range fs {
			values[i] = "worker " + strconv.Itoa(f.Worker) + " (" + f.Account + "): " + f.Error
		}
		s.check(ctx, s.store.RPush(ctx, s.FailuresKey(runID), values...), "rpush")
		s.expire(ctx, s.FailuresKey(runID))
	}
}

func (s *KVSink) run() (string, int) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.runID, s.total
}

func (s *KVSink) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(logger.NewContext(context.Background(), s.logger), s.opts.Timeout)
}

func (s *KVSink) expire(ctx context.Context, key string) {
	if s.opts.TTL > 0 {
		s.check(ctx, s.store.Expire(ctx, key, s.opts.TTL), "expire")
	}
}

func (s *KVSink) check(ctx context.Context, err error, op string) bool {
	if err != nil {
		logger.FromContextWithErr(ctx, err).Warn("failed to mirror progress", "op", op)
		return false
	}
	return true
}
