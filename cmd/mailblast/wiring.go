package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/executor"
	"github.com/pure-golang/mailblast/executor/cli"
	"github.com/pure-golang/mailblast/kv"
	"github.com/pure-golang/mailblast/mail"
	"github.com/pure-golang/mailblast/mail/noop"
	"github.com/pure-golang/mailblast/mail/smtp"
	"github.com/pure-golang/mailblast/queue"
	"github.com/pure-golang/mailblast/queue/kafka"
	"github.com/pure-golang/mailblast/queue/rabbitmq"
	"github.com/pure-golang/mailblast/sinks"
)

const shutdownTimeout = 10 * time.Second

// cleanup runs registered closers in reverse order.
type cleanup []func(ctx context.Context) error

func (c *cleanup) add(f func(ctx context.Context) error) {
	*c = append(*c, f)
}

func (c cleanup) run(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			log.Warn("shutdown step failed", "error", err.Error())
		}
	}
}

func newDialer(c Config, log *slog.Logger) mail.Dialer {
	if c.Send.DryRun {
		log.Info("dry run, nothing is sent")
		return noop.NewDialer()
	}
	return smtp.NewDialer(c.SMTP, &smtp.DialerOptions{Logger: log})
}

// buildSinks returns the sinks the config asks for beside the log sink.
func buildSinks(ctx context.Context, c Config, log *slog.Logger, done *cleanup) ([]blast.ProgressSink, error) {
	var out []blast.ProgressSink

	pub, err := newPublisher(ctx, c, log, done)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		qs := sinks.NewQueueSink(pub, &sinks.QueueSinkOptions{
			Logger:  log,
			Every:   c.Sinks.QueueEvery,
			Buffer:  c.Sinks.QueueBuffer,
			Timeout: c.Sinks.Timeout,
		})
		done.add(qs.Close)
		out = append(out, qs)
	}

	if c.Sinks.KV {
		store, err := kv.New(ctx, c.KV, log)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect kv store")
		}
		done.add(func(context.Context) error { return store.Close() })
		out = append(out, sinks.NewKVSink(store, &sinks.KVSinkOptions{
			Logger:  log,
			Prefix:  c.Sinks.KVPrefix,
			TTL:     c.Sinks.KVTTL,
			Timeout: c.Sinks.Timeout,
		}))
	}

	if c.Hook.Command != "" {
		var e executor.Executor = cli.New(c.Hook)
		if ch, ok := e.(executor.Checker); ok {
			if err := ch.Start(); err != nil {
				return nil, err
			}
		}
		done.add(func(context.Context) error { return e.Close() })
		out = append(out, sinks.NewHookSink(e, log))
	}

	return out, nil
}

func newPublisher(ctx context.Context, c Config, log *slog.Logger, done *cleanup) (queue.Publisher, error) {
	if c.Sinks.Queue == sinks.QueueNone || c.Sinks.Queue == "" {
		return nil, nil
	}
	enc, err := c.Sinks.Encoder()
	if err != nil {
		return nil, err
	}

	switch c.Sinks.Queue {
	case sinks.QueueRabbitMQ:
		d := rabbitmq.NewDialer(c.RabbitMQ.URL, &rabbitmq.DialerOptions{Logger: log})
		connectCtx, cancel := context.WithTimeout(ctx, c.Sinks.Timeout*5)
		defer cancel()
		if err := d.Connect(connectCtx); err != nil {
			return nil, err
		}
		done.add(func(context.Context) error { return d.Close() })
		cfg := rabbitmq.NewPublisherConfig(c.RabbitMQ)
		cfg.Encoder = enc
		p := rabbitmq.NewPublisher(d, cfg)
		done.add(func(context.Context) error { return p.Close() })
		return p, nil
	case sinks.QueueKafka:
		d := kafka.NewDialer(c.Kafka, &kafka.DialerOptions{Logger: log})
		if err := d.Ping(ctx); err != nil {
			return nil, err
		}
		done.add(func(context.Context) error { return d.Close() })
		p := kafka.NewPublisher(d, kafka.PublisherConfig{Encoder: enc})
		done.add(func(context.Context) error { return p.Close() })
		return p, nil
	default:
		return nil, errors.Errorf("unknown queue sink %q", c.Sinks.Queue)
	}
}
