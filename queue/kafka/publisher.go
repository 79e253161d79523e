package kafka

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/queue"
	"github.com/pure-golang/mailblast/queue/encoders"
)

var _ queue.Publisher = (*Publisher)(nil)

var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher writes messages synchronously. Messages of one run share a key,
// so they land on one partition in order.
type Publisher struct {
	mx     sync.Mutex
	dialer *Dialer
	cfg    PublisherConfig
	writer *kafka.Writer
	closed bool
}

type PublisherConfig struct {
	Topic    string         // used when a message has no topic
	Balancer kafka.Balancer // defaults to Hash so keys keep their order
	Encoder  queue.Encoder  // defaults to JSON
}

func NewPublisher(dialer *Dialer, cfg PublisherConfig) *Publisher {
	if cfg.Encoder == nil {
		cfg.Encoder = encoders.JSON{}
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}
	if cfg.Topic == "" {
		cfg.Topic = dialer.cfg.Topic
	}

	return &Publisher{
		dialer: dialer,
		cfg:    cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(dialer.cfg.Brokers...),
			Balancer:               cfg.Balancer,
			Transport:              dialer.transport,
			MaxAttempts:            dialer.cfg.MaxAttempts,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			Logger:                 kafka.LoggerFunc(func(msg string, args ...any) { dialer.logger.Debug(msg, "args", args) }),
			ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...any) { dialer.logger.Error(msg, "args", args) }),
		},
	}
}

// Publish writes all messages in one batch.
func (p *Publisher) Publish(ctx context.Context, messages ...queue.Message) error {
	if len(messages) == 0 {
		return nil
	}

	p.mx.Lock()
	closed := p.closed
	p.mx.Unlock()
	if closed {
		return ErrPublisherClosed
	}
	if err := p.dialer.check(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "Kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	batch := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		km, err := p.message(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		batch = append(batch, km)
	}

	span.SetAttributes(
		attribute.String("topic", batch[0].Topic),
		attribute.Int("messages", len(batch)),
	)

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		err = errors.Wrap(err, "failed to publish message to Kafka")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Publisher) message(ctx context.Context, msg queue.Message) (kafka.Message, error) {
	body, err := msg.EncodeValue(p.cfg.Encoder)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "failed to encode message body")
	}

	topic := msg.Topic
	if topic == "" {
		topic = p.cfg.Topic
	}
	if topic == "" {
		return kafka.Message{}, errors.New("no topic for message")
	}

	key := msg.Key
	if key == "" {
		key = uuid.NewString()
	}

	km := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: make([]kafka.Header, 0, len(msg.Headers)+3),
	}
	carrier := headersCarrier{headers: &km.Headers}
	for k, v := range msg.Headers {
		carrier.Set(k, v)
	}
	carrier.Set("content-type", p.cfg.Encoder.ContentType())
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return km, nil
}

func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Wrap(p.writer.Close(), "failed to close kafka writer")
}
