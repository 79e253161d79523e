package smtp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/mail"
)

var _ mail.Session = (*Session)(nil)

// Session is an open SMTP client connection. It is safe for concurrent use,
// though sends on one session are serialized.
type Session struct {
	mx     sync.Mutex
	client *smtp.Client
	addr   string
	logger *slog.Logger
	closed bool
}

// Send transmits one message: MAIL FROM, RCPT TO for every recipient, DATA.
func (s *Session) Send(ctx context.Context, from string, to []string, payload []byte) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		recordError(span, err)
		span.End()
	}()
	span.SetAttributes(
		attribute.String("smtp.addr", s.addr),
		attribute.String("smtp.from", from),
		attribute.Int("smtp.recipients", len(to)),
		attribute.Int("smtp.size", len(payload)),
	)

	if len(to) == 0 {
		return mail.NewError(mail.ErrProtocol, "send", errors.New("no recipients"))
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return mail.NewError(mail.ErrDisconnected, "send", errSessionClosed)
	}

	if err := s.client.Mail(from, nil); err != nil {
		return s.fail("mail from", err)
	}
	for _, rcpt := range to {
		if err := s.client.Rcpt(rcpt, nil); err != nil {
			return s.fail("rcpt to", err)
		}
	}

	w, err := s.client.Data()
	if err != nil {
		return s.fail("data", err)
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return s.fail("data", err)
	}
	if err := w.Close(); err != nil {
		return s.fail("data", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// fail classifies err and, when the server is still there, resets the
// transaction so the session stays usable.
func (s *Session) fail(op string, err error) error {
	classified := classify(op, err)
	if errors.Is(classified, mail.ErrProtocol) {
		if rerr := s.client.Reset(); rerr != nil {
			s.logger.Debug("reset failed", "addr", s.addr, "error", rerr)
		}
	}
	return classified
}

// Close says QUIT and closes the connection. Calling Close again is a no-op.
func (s *Session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Quit(); err != nil {
		s.logger.Debug("quit failed", "addr", s.addr, "error", err)
		_ = s.client.Close()
	}
	return nil
}
