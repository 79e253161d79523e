package sinks

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/kv/redis"
)

func newKVSink(t *testing.T, opts *KVSinkOptions) (*KVSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := redis.Connect(context.Background(), redis.Config{Addr: mr.Addr()}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if opts == nil {
		opts = &KVSinkOptions{}
	}
	opts.Logger = slog.New(slog.DiscardHandler)
	return NewKVSink(store, opts), mr
}

func TestKVSinkMirrorsRun(t *testing.T) {
	t.Parallel()
	s, mr := newKVSink(t, &KVSinkOptions{TTL: time.Hour})

	s.OnStart("run-1", 3)
	s.OnSent(0)
	s.OnSent(1)
	s.OnSent(0)
	s.OnComplete(true, nil)

	key := "mailblast:run:run-1"
	assert.Equal(t, "done", mr.HGet(key, "status"))
	assert.Equal(t, "3", mr.HGet(key, "total"))
	assert.Equal(t, "3", mr.HGet(key, "sent"))
	assert.Equal(t, "2", mr.HGet(key, "w0"))
	assert.Equal(t, "1", mr.HGet(key, "w1"))
	assert.Equal(t, "Sent: 3 / 3", mr.HGet(key, "label"))
	assert.NotEmpty(t, mr.HGet(key, "started_at"))
	assert.NotEmpty(t, mr.HGet(key, "finished_at"))
	assert.Equal(t, time.Hour, mr.TTL(key))

	runs, err := mr.Members("mailblast:runs")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, runs)
	assert.False(t, mr.Exists(s.FailuresKey("run-1")))

	latest, err := mr.Get("mailblast:latest")
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest)
}

func TestKVSinkFailures(t *testing.T) {
	t.Parallel()
	s, mr := newKVSink(t, &KVSinkOptions{Prefix: "mb"})

	s.OnStart("run-2", 4)
	s.OnSent(0)
	s.OnComplete(false, &blast.ErrorInfo{Failures: []blast.WorkerFailure{
		{Worker: 1, Account: "b@example.com", Err: errors.New("retries exhausted")},
	}})

	assert.Equal(t, "failed", mr.HGet("mb:run:run-2", "status"))
	assert.Equal(t, "Sent: 1 / 4", mr.HGet("mb:run:run-2", "label"))
	list, err := mr.List("mb:run:run-2:failures")
	require.NoError(t, err)
	assert.Equal(t, []string{"worker 1 (b@example.com): retries exhausted"}, list)
}

func TestKVSinkIgnoresEventsBeforeStart(t *testing.T) {
	t.Parallel()
	s, mr := newKVSink(t, nil)

	s.OnSent(0)
	s.OnComplete(true, nil)

	assert.Empty(t, mr.Keys())
}

func TestKVSinkSurvivesStoreOutage(t *testing.T) {
	t.Parallel()
	s, mr := newKVSink(t, &KVSinkOptions{Timeout: 200 * time.Millisecond})

	s.OnStart("run-3", 2)
	mr.SetError("LOADING server is loading")

	assert.NotPanics(t, func() {
		s.OnSent(0)
		s.OnComplete(true, nil)
	})
}
