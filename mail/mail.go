package mail

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Session kinds of failure. Concrete errors returned by a Dialer or Session
// match one of these with errors.Is.
var (
	ErrConnection   = errors.New("smtp connection failed")
	ErrAuth         = errors.New("smtp authentication failed")
	ErrProtocol     = errors.New("smtp protocol error")
	ErrDisconnected = errors.New("smtp server disconnected")
)

// Dialer opens SMTP sessions for an account.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Session, error)
}

// Session is one live SMTP connection. Close must be safe to call more than
// once and on a broken session.
type Session interface {
	Send(ctx context.Context, from string, to []string, payload []byte) error
	io.Closer
}

// Account is a sending identity: the login address, its password and the
// server ("host" or "host:port") it submits through.
type Account struct {
	Address  string
	Password string
	Server   string
}

// NumberPlaceholder is replaced by the send number in numbered messages.
const NumberPlaceholder = "{num}"

// Message is a fully built payload. It is shared read-only between workers.
type Message struct {
	From        string // envelope sender; falls back to the account address
	DisplayFrom string // header sender, informational only
	Payload     []byte
	Numbered    bool // replace NumberPlaceholder with the send number
}

// Render returns the bytes to transmit for send number num (1-based).
func (m *Message) Render(num int) []byte {
	if !m.Numbered || !bytes.Contains(m.Payload, []byte(NumberPlaceholder)) {
		return m.Payload
	}
	return bytes.ReplaceAll(m.Payload, []byte(NumberPlaceholder), []byte(strconv.Itoa(num)))
}

// Sender returns the envelope sender for the account.
func (m *Message) Sender(account Account) string {
	if m.From != "" {
		return m.From
	}
	return account.Address
}

// Error is returned by sessions. It matches its Kind and unwraps to the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError wraps err with the given kind.
func NewError(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
