package rabbitmq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/queue"
	"github.com/pure-golang/mailblast/queue/encoders"
)

var _ queue.Publisher = (*Publisher)(nil)

type Publisher struct {
	mx       sync.Mutex
	dialer   *Dialer
	cfg      PublisherConfig
	channel  *amqp.Channel
	closed   <-chan *amqp.Error
	declared bool
}

type DeliveryMode uint8

const (
	Transient  = DeliveryMode(amqp.Transient)
	Persistent = DeliveryMode(amqp.Persistent)
)

type PublisherConfig struct {
	Exchange, RoutingKey string
	ExchangeKind         string // declared durable on first use when set
	DeliveryMode         DeliveryMode
	Encoder              queue.Encoder
	MessageTTL           time.Duration // precision to milliseconds
}

// NewPublisherConfig maps the env config onto a publisher config.
func NewPublisherConfig(c Config) PublisherConfig {
	return PublisherConfig{
		Exchange:     c.Exchange,
		ExchangeKind: c.ExchangeKind,
		RoutingKey:   c.RoutingKey,
	}
}

func NewPublisher(dialer *Dialer, cfg PublisherConfig) *Publisher {
	if cfg.Encoder == nil {
		cfg.Encoder = encoders.JSON{}
	}
	if cfg.DeliveryMode == 0 {
		cfg.DeliveryMode = Persistent
	}

	closed := make(chan *amqp.Error, 1)
	close(closed)

	return &Publisher{
		dialer: dialer,
		cfg:    cfg,
		closed: closed,
	}
}

// Publish sends messages in order and stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, messages ...queue.Message) error {
	channel, err := p.ensureChannel()
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := p.publish(ctx, channel, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) ensureChannel() (*amqp.Channel, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	select {
	case <-p.closed:
	default:
		return p.channel, nil
	}

	channel, err := p.dialer.Channel()
	if err != nil {
		return nil, err
	}
	if p.cfg.ExchangeKind != "" && p.cfg.Exchange != "" && !p.declared {
		if err := channel.ExchangeDeclare(p.cfg.Exchange, p.cfg.ExchangeKind, true, false, false, false, nil); err != nil {
			_ = channel.Close()
			return nil, errors.Wrapf(err, "failed to declare exchange %q", p.cfg.Exchange)
		}
		p.declared = true
	}
	p.channel = channel
	p.closed = channel.NotifyClose(make(chan *amqp.Error, 1))
	return channel, nil
}

func (p *Publisher) publish(ctx context.Context, channel *amqp.Channel, msg queue.Message) error {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	body, err := msg.EncodeValue(p.cfg.Encoder)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	amqpMsg := amqp.Publishing{
		ContentType:  p.cfg.Encoder.ContentType(),
		MessageId:    msg.Key,
		Timestamp:    time.Now(),
		DeliveryMode: uint8(p.cfg.DeliveryMode),
		Body:         body,
		Headers:      amqp.Table{},
	}
	if amqpMsg.MessageId == "" {
		amqpMsg.MessageId = uuid.NewString()
	}
	for k, v := range msg.Headers {
		amqpMsg.Headers[k] = v
	}
	if p.cfg.MessageTTL > 0 {
		amqpMsg.Expiration = strconv.FormatInt(p.cfg.MessageTTL.Milliseconds(), 10)
	}
	if msg.TTL > 0 {
		amqpMsg.Expiration = strconv.FormatInt(msg.TTL.Milliseconds(), 10)
	}

	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(amqpMsg.Headers))

	routingKey := p.cfg.RoutingKey
	if msg.Topic != "" {
		routingKey = msg.Topic
	}

	span.SetAttributes(
		attribute.String("id", amqpMsg.MessageId),
		attribute.String("exchange", p.cfg.Exchange),
		attribute.String("key", routingKey),
		attribute.Int("body_size", len(body)),
	)

	err = channel.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqpMsg)
	if err != nil {
		err = errors.Wrapf(err, "failed to publish to %q", routingKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close releases the publisher channel. The dialer stays open.
func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	closed := make(chan *amqp.Error, 1)
	close(closed)
	p.closed = closed
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "failed to close channel")
	}
	return nil
}
