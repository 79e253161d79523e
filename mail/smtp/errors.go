package smtp

import (
	"io"
	"net"
	"net/textproto"
	"syscall"

	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/mail"
)

// codeServiceNotAvailable is the reply a server sends right before it drops
// the connection.
const codeServiceNotAvailable = 421

var errSessionClosed = errors.New("session is closed")

// classify maps a client error to one of the mail error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDisconnect(err) {
		return mail.NewError(mail.ErrDisconnected, op, err)
	}
	return mail.NewError(mail.ErrProtocol, op, err)
}

// classifyAuth is classify for the AUTH exchange: any server reply other
// than 421 is a rejected login.
func classifyAuth(err error) error {
	if isDisconnect(err) {
		return mail.NewError(mail.ErrDisconnected, "auth", err)
	}
	return mail.NewError(mail.ErrAuth, "auth", err)
}

// classifyHello maps greeting, EHLO and STARTTLS failures. Replies and
// malformed lines are protocol errors, 421 and dropped sockets are
// disconnects, anything else (TLS handshake, local write) is a connection
// failure.
func classifyHello(op string, err error) error {
	if isDisconnect(err) {
		return mail.NewError(mail.ErrDisconnected, op, err)
	}
	var smtpErr *smtp.SMTPError
	var protoErr textproto.ProtocolError
	var replyErr *textproto.Error
	if errors.As(err, &smtpErr) || errors.As(err, &protoErr) || errors.As(err, &replyErr) {
		return mail.NewError(mail.ErrProtocol, op, err)
	}
	return mail.NewError(mail.ErrConnection, op, err)
}

func isDisconnect(err error) bool {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code == codeServiceNotAvailable
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code == codeServiceNotAvailable
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
