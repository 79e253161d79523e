package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

var ErrConnectionClosed = errors.New("connection is closed manually")

// Dialer holds one AMQP connection and re-dials it after broker failures.
type Dialer struct {
	uri     string
	conn    *amqp.Connection
	options *DialerOptions
	mx      sync.Mutex
	closed  bool
}

// DialerOptions set dialer params.
type DialerOptions struct {
	// Backoff returns a fresh schedule for each dial cycle. Defaults to
	// DefaultBackoff.
	Backoff func() retry.Backoff
	Logger  *slog.Logger
}

// DefaultBackoff doubles from 100ms, capped at 30s per wait and 2h overall.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(100 * time.Millisecond)
	b = retry.WithCappedDuration(30*time.Second, b)
	return retry.WithMaxDuration(2*time.Hour, b)
}

func NewDefaultDialer(uri string) *Dialer {
	return NewDialer(uri, nil)
}

func NewDialer(uri string, options *DialerOptions) *Dialer {
	if options == nil {
		options = new(DialerOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	options.Logger = options.Logger.WithGroup("rabbitmq")

	if options.Backoff == nil {
		options.Backoff = DefaultBackoff
	}

	return &Dialer{
		uri:     uri,
		options: options,
	}
}

// Connect dials the broker, retrying on the backoff schedule until ctx is done.
func (d *Dialer) Connect(ctx context.Context) error {
	d.mx.Lock()
	d.closed = false
	d.mx.Unlock()

	return d.dial(ctx)
}

func (d *Dialer) dial(ctx context.Context) error {
	err := retry.Do(ctx, d.options.Backoff(), func(context.Context) error {
		err := d.connect()
		if errors.Is(err, ErrConnectionClosed) {
			return err
		}
		if err != nil {
			d.options.Logger.With("error", err.Error()).Warn("Failed to connect")
			return retry.RetryableError(err)
		}
		return nil
	})
	return errors.Wrap(err, "failed to connect to rabbitmq")
}

func (d *Dialer) connect() error {
	d.options.Logger.Debug("Dialing...")

	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return ErrConnectionClosed
	}

	conn, err := amqp.DialConfig(d.uri, amqp.Config{Properties: amqp.NewConnectionProperties()})
	if err != nil {
		return errors.Wrap(err, "failed to dial")
	}

	ch := conn.NotifyClose(make(chan *amqp.Error, 1))
	d.conn = conn
	d.options.Logger.Debug("Connection is stable")
	go d.handleReconnect(ch)
	return nil
}

func (d *Dialer) Channel() (*amqp.Channel, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.conn == nil || d.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	channel, err := d.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel")
	}
	return channel, nil
}

func (d *Dialer) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	d.closed = true
	if d.conn == nil {
		return nil
	}
	conn := d.conn
	d.conn = nil
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "failed to close RabbitMQ connection")
	}
	return nil
}

// handleReconnect waits for the connection to drop and dials again.
func (d *Dialer) handleReconnect(ch chan *amqp.Error) {
	err, ok := <-ch
	if !ok {
		d.options.Logger.Debug("Shutdown")
		return
	}

	d.options.Logger.With("error", err.Error()).Warn("Disconnected")

	if err := d.dial(context.Background()); err != nil {
		d.options.Logger.With("error", err.Error()).Error("Cannot connect to rabbitmq. Giving up")
	}
}
