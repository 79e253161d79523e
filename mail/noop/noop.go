package noop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pure-golang/mailblast/mail"
)

var (
	_ mail.Dialer  = (*Dialer)(nil)
	_ mail.Session = (*Session)(nil)
)

// Dialer opens sessions that accept every message without any I/O.
// Used for dry runs.
type Dialer struct {
	// Latency is slept on every send to simulate a server.
	Latency time.Duration

	dials atomic.Int64
	sent  atomic.Int64
}

// NewDialer creates a new no-op Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial always succeeds.
func (d *Dialer) Dial(ctx context.Context, _ mail.Account) (mail.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, mail.NewError(mail.ErrConnection, "dial", err)
	}
	d.dials.Add(1)
	return &Session{dialer: d}, nil
}

// Dials returns the number of sessions opened.
func (d *Dialer) Dials() int64 {
	return d.dials.Load()
}

// Sent returns the number of messages accepted by all sessions.
func (d *Dialer) Sent() int64 {
	return d.sent.Load()
}

// Session silently discards messages.
type Session struct {
	dialer *Dialer
	closed atomic.Bool
}

// Send discards the message.
func (s *Session) Send(ctx context.Context, _ string, _ []string, _ []byte) error {
	if s.closed.Load() {
		return mail.NewError(mail.ErrDisconnected, "send", nil)
	}
	if s.dialer.Latency > 0 {
		t := time.NewTimer(s.dialer.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	s.dialer.sent.Add(1)
	return nil
}

// Close is a no-op.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}
