// Package queue carries run events to a message broker.
package queue

import (
	"context"
	"time"
)

// Publisher sends messages to a topic of a message broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Encoder converts a body to bytes.
type Encoder interface {
	Encode(i any) ([]byte, error)
	ContentType() string
}

// Message is one event to publish. Empty Topic means the publisher default.
// Key identifies the message; brokers that partition use it as the
// partition key.
type Message struct {
	Topic   string
	Key     string
	Headers map[string]string
	Body    any
	TTL     time.Duration
}

// EncodeValue converts Body to []byte using enc. A nil Body encodes to nil.
func (m *Message) EncodeValue(enc Encoder) ([]byte, error) {
	if m.Body == nil {
		return nil, nil
	}
	return enc.Encode(m.Body)
}
