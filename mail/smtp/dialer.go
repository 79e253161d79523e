package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/mail"
)

var _ mail.Dialer = (*Dialer)(nil)

// Dialer opens authenticated SMTP sessions.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
	net    *net.Dialer
}

type DialerOptions struct {
	Logger *slog.Logger
}

// NewDialer creates a new SMTP dialer.
func NewDialer(cfg Config, options *DialerOptions) *Dialer {
	if options == nil {
		options = &DialerOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if cfg.DialAttempts < 1 {
		cfg.DialAttempts = 1
	}
	if cfg.DialInterval <= 0 {
		cfg.DialInterval = time.Second
	}
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}

	return &Dialer{
		cfg:    cfg,
		logger: options.Logger.WithGroup("smtp"),
		net:    &net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Dial connects to the account server, says EHLO, upgrades to TLS when the
// server advertises STARTTLS and logs in when it advertises AUTH.
func (d *Dialer) Dial(ctx context.Context, account mail.Account) (mail.Session, error) {
	if account.Server == "" {
		return nil, mail.NewError(mail.ErrConnection, "dial", ErrNoServer)
	}
	addr := d.address(account.Server)

	ctx, span := tracer.Start(ctx, "SMTP.Dial", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("smtp.addr", addr),
		attribute.String("smtp.account", account.Address),
	)

	client, err := d.open(ctx, addr)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	session := &Session{client: client, addr: addr, logger: d.logger}

	if err := d.login(client, account); err != nil {
		_ = session.Close()
		recordError(span, err)
		return nil, err
	}
	_, secure := client.TLSConnectionState()
	span.SetAttributes(attribute.Bool("smtp.tls", secure))

	d.logger.Debug("session opened", "addr", addr, "account", account.Address, "tls", secure)
	return session, nil
}

// open connects and greets. When TLS is enabled and the first EHLO
// advertises STARTTLS, the probe connection is quit and a second one is
// upgraded before greeting again.
func (d *Dialer) open(ctx context.Context, addr string) (*smtp.Client, error) {
	conn, err := d.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	client := d.newClient(conn)
	if err := client.Hello(d.cfg.LocalName); err != nil {
		_ = client.Close()
		return nil, classifyHello("hello", err)
	}
	if !d.cfg.TLS {
		return client, nil
	}
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return client, nil
	}
	if err := client.Quit(); err != nil {
		_ = client.Close()
	}

	conn, err = d.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	client, err = smtp.NewClientStartTLS(conn, d.tlsConfig(addr))
	if err != nil {
		return nil, classifyHello("starttls", err)
	}
	if d.cfg.CommandTimeout > 0 {
		client.CommandTimeout = d.cfg.CommandTimeout
	}
	// EHLO again over TLS; this is where the TLS handshake happens.
	if err := client.Hello(d.cfg.LocalName); err != nil {
		_ = client.Close()
		return nil, classifyHello("starttls", err)
	}
	return client, nil
}

func (d *Dialer) newClient(conn net.Conn) *smtp.Client {
	client := smtp.NewClient(conn)
	if d.cfg.CommandTimeout > 0 {
		client.CommandTimeout = d.cfg.CommandTimeout
	}
	return client
}

func (d *Dialer) tlsConfig(addr string) *tls.Config {
	host, _, _ := net.SplitHostPort(addr)
	// #nosec G402 -- InsecureSkipVerify is controlled by configuration
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: d.cfg.Insecure,
		MinVersion:         tls.VersionTLS12,
	}
}

// connect opens the TCP connection, retrying up to DialAttempts times.
func (d *Dialer) connect(ctx context.Context, addr string) (net.Conn, error) {
	var conn net.Conn
	backoff := retry.WithMaxRetries(uint64(d.cfg.DialAttempts-1), retry.NewConstant(d.cfg.DialInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := d.net.DialContext(ctx, "tcp", addr)
		if err != nil {
			d.logger.Debug("connect failed", "addr", addr, "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, mail.NewError(mail.ErrConnection, "connect "+addr, err)
	}
	return conn, nil
}

// login authenticates when AUTH is advertised, enabled and the account has
// a password.
func (d *Dialer) login(client *smtp.Client, account mail.Account) error {
	if !d.cfg.Auth || account.Password == "" {
		return nil
	}
	ok, mechs := client.Extension("AUTH")
	if !ok {
		return nil
	}
	if err := client.Auth(saslClient(mechs, account)); err != nil {
		return classifyAuth(err)
	}
	return nil
}

// saslClient prefers PLAIN and falls back to LOGIN when that is all the
// server offers.
func saslClient(mechs string, account mail.Account) sasl.Client {
	offered := strings.Fields(strings.ToUpper(mechs))
	plain, login := false, false
	for _, m := range offered {
		switch m {
		case sasl.Plain:
			plain = true
		case sasl.Login:
			login = true
		}
	}
	if login && !plain {
		return sasl.NewLoginClient(account.Address, account.Password)
	}
	return sasl.NewPlainClient("", account.Address, account.Password)
}

func (d *Dialer) address(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), strconv.Itoa(d.cfg.Port))
}

// ErrNoServer is returned by Dial when the account has no server.
var ErrNoServer = errors.New("account has no server")
