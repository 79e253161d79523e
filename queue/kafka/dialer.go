package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var ErrConnectionClosed = errors.New("connection is closed")

// Dialer holds the broker addresses and the transport shared by publishers.
type Dialer struct {
	cfg       Config
	logger    *slog.Logger
	dialer    *kafka.Dialer
	transport *kafka.Transport

	mx     sync.Mutex
	closed bool
}

type DialerOptions struct {
	Logger *slog.Logger
}

func NewDialer(cfg Config, options *DialerOptions) *Dialer {
	if options == nil {
		options = new(DialerOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	return &Dialer{
		cfg:    cfg,
		logger: options.Logger.WithGroup("kafka"),
		dialer: &kafka.Dialer{
			Timeout:   cfg.DialTimeout,
			DualStack: true,
		},
		transport: &kafka.Transport{
			DialTimeout: cfg.DialTimeout,
		},
	}
}

func NewDefaultDialer(brokers []string) *Dialer {
	return NewDialer(Config{Brokers: brokers}, nil)
}

// Ping opens and closes a connection to the first reachable broker.
func (d *Dialer) Ping(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	var lastErr error
	for _, broker := range d.cfg.Brokers {
		conn, err := d.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return errors.Wrap(conn.Close(), "failed to close probe connection")
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return errors.Wrap(lastErr, "failed to reach kafka")
}

func (d *Dialer) check() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return ErrConnectionClosed
	}
	return nil
}

func (d *Dialer) Brokers() []string {
	return d.cfg.Brokers
}

func (d *Dialer) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.transport.CloseIdleConnections()
	d.logger.Debug("Kafka dialer closed")
	return nil
}
