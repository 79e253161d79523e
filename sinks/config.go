package sinks

import (
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/queue"
	"github.com/pure-golang/mailblast/queue/encoders"
)

type QueueBackend string

const (
	QueueNone     QueueBackend = "none"
	QueueRabbitMQ QueueBackend = "rabbitmq"
	QueueKafka    QueueBackend = "kafka"
)

// Encoding is the body format of queued events.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingText Encoding = "text" // one line per event, see Event.String
)

type Config struct {
	Queue       QueueBackend  `envconfig:"SINK_QUEUE" default:"none"`
	Encoding    Encoding      `envconfig:"SINK_QUEUE_ENCODING" default:"json"`
	QueueEvery  int           `envconfig:"SINK_QUEUE_EVERY" default:"1"`
	QueueBuffer int           `envconfig:"SINK_QUEUE_BUFFER" default:"1024"`
	KV          bool          `envconfig:"SINK_KV" default:"false"`
	KVPrefix    string        `envconfig:"SINK_KV_PREFIX" default:"mailblast"`
	KVTTL       time.Duration `envconfig:"SINK_KV_TTL" default:"24h"`
	Timeout     time.Duration `envconfig:"SINK_TIMEOUT" default:"2s"`
}

// Encoder returns the queue encoder for c.Encoding. Empty means JSON.
func (c Config) Encoder() (queue.Encoder, error) {
	switch c.Encoding {
	case EncodingJSON, "":
		return encoders.JSON{}, nil
	case EncodingText:
		return encoders.Text{}, nil
	default:
		return nil, errors.Errorf("unknown queue encoding %q", c.Encoding)
	}
}
