// Package kv is the key-value store progress is mirrored into.
package kv

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/kv/noop"
	"github.com/pure-golang/mailblast/kv/redis"
)

type Provider string

const (
	ProviderRedis Provider = "redis"
	ProviderNoop  Provider = "noop"
)

type Config struct {
	Provider Provider `envconfig:"KV_PROVIDER" default:"noop"`
	redis.Config
}

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = redis.ErrKeyNotFound

// Store holds run mirrors. KVSink writes them, and the status command reads
// and forgets them.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, expiration time.Duration) error

	HSet(ctx context.Context, key string, values map[string]any) error
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	RPush(ctx context.Context, key string, values ...any) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*redis.Client)(nil)
	_ Store = (*noop.Store)(nil)
)

// New connects the configured store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Provider {
	case ProviderRedis:
		return redis.Connect(ctx, cfg.Config, logger)
	case ProviderNoop, "":
		return noop.NewStore(), nil
	default:
		return nil, errors.Errorf("unknown kv provider: %s", cfg.Provider)
	}
}
