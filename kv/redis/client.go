package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"
)

// Client is a traced Redis store.
type Client struct {
	rdb    *rclient.Client
	cfg    Config
	logger *slog.Logger
}

// Connect opens a client and pings the server.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.WithGroup("redis")
	logger.Debug("connecting to redis", "addr", cfg.Addr)

	c := NewClient(rclient.NewClient(&rclient.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
	}), cfg, logger)

	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return c, nil
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *rclient.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default().WithGroup("redis")
	}
	return &Client{rdb: rdb, cfg: cfg, logger: logger}
}

func (c *Client) do(ctx context.Context, op, key string, f func(ctx context.Context) error) error {
	ctx, span := startSpan(ctx, op, key, c.cfg.DB)
	defer span.End()

	err := mapError(f(ctx))
	finishSpan(span, err)
	return err
}

func (c *Client) Close() error {
	err := c.rdb.Close()
	if err != nil && !errors.Is(err, rclient.ErrClosed) {
		return errors.Wrap(err, "failed to close redis connection")
	}
	c.logger.Debug("redis connection closed")
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "Ping", "", func(ctx context.Context) error {
		return errors.Wrap(c.rdb.Ping(ctx).Err(), "failed to ping redis")
	})
}

// Get returns ErrKeyNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) (val string, err error) {
	err = c.do(ctx, "Get", key, func(ctx context.Context) error {
		var err error
		val, err = c.rdb.Get(ctx, key).Result()
		if err = mapError(err); errors.Is(err, ErrKeyNotFound) {
			return err
		}
		return errors.Wrapf(err, "failed to get key %q", key)
	})
	return val, err
}

func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.do(ctx, "Set", key, func(ctx context.Context) error {
		return errors.Wrapf(c.rdb.Set(ctx, key, value, expiration).Err(), "failed to set key %q", key)
	})
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.do(ctx, "Delete", "", func(ctx context.Context) error {
		return errors.Wrap(c.rdb.Del(ctx, keys...).Err(), "failed to delete keys")
	})
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.do(ctx, "Expire", key, func(ctx context.Context) error {
		return errors.Wrapf(c.rdb.Expire(ctx, key, expiration).Err(), "failed to expire key %q", key)
	})
}

func (c *Client) HSet(ctx context.Context, key string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return c.do(ctx, "HSet", key, func(ctx context.Context) error {
		return errors.Wrapf(c.rdb.HSet(ctx, key, values).Err(), "failed to hset %q", key)
	})
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, n int64) (val int64, err error) {
	err = c.do(ctx, "HIncrBy", key, func(ctx context.Context) error {
		var err error
		val, err = c.rdb.HIncrBy(ctx, key, field, n).Result()
		return errors.Wrapf(err, "failed to hincrby %q %q", key, field)
	})
	return val, err
}

func (c *Client) HGetAll(ctx context.Context, key string) (val map[string]string, err error) {
	err = c.do(ctx, "HGetAll", key, func(ctx context.Context) error {
		var err error
		val, err = c.rdb.HGetAll(ctx, key).Result()
		return errors.Wrapf(err, "failed to hgetall %q", key)
	})
	return val, err
}

func (c *Client) RPush(ctx context.Context, key string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	return c.do(ctx, "RPush", key, func(ctx context.Context) error {
		return errors.Wrapf(c.rdb.RPush(ctx, key, values...).Err(), "failed to rpush %q", key)
	})
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) (val []string, err error) {
	err = c.do(ctx, "LRange", key, func(ctx context.Context) error {
		var err error
		val, err = c.rdb.LRange(ctx, key, start, stop).Result()
		return errors.Wrapf(err, "failed to lrange %q", key)
	})
	return val, err
}

func (c *Client) SAdd(ctx context.Context, key string, members ...any) error {
	if len(members) == 0 {
		return nil
	}
	return c.do(ctx, "SAdd", key, func(ctx context.Context) error {
		return errors.Wrapf(c.rdb.SAdd(ctx, key, members...).Err(), "failed to sadd %q", key)
	})
}

func (c *Client) SMembers(ctx context.Context, key string) (val []string, err error) {
	err = c.do(ctx, "SMembers", key, func(ctx context.Context) error {
		var err error
		val, err = c.rdb.SMembers(ctx, key).Result()
		return errors.Wrapf(err, "failed to smembers %q", key)
	})
	return val, err
}
