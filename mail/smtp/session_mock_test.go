package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailblast/mail"
)

// miniSMTPServer is a minimal scripted SMTP server for testing
type miniSMTPServer struct {
	listener net.Listener

	greeting   string // first line sent to the client
	auth       string // mechanisms advertised with AUTH, empty to omit
	rejectAuth bool
	dropAfter  int    // drop the connection after this many messages, 0 to never drop
	rejectRcpt string // recipient answered with 550
	cert       *tls.Certificate // advertise STARTTLS with this certificate

	mx       sync.Mutex
	messages [][]byte
	secure   []bool // per message, whether it arrived over TLS
	logins   []string
	quits    int
	conns    int
}

// startMiniSMTPServer starts a minimal SMTP server on a random localhost port
func startMiniSMTPServer(t *testing.T, configure func(s *miniSMTPServer)) *miniSMTPServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start SMTP server")

	server := &miniSMTPServer{
		listener: listener,
		greeting: "220 localhost ESMTP Test Server",
	}
	if configure != nil {
		configure(server)
	}

	go server.handleConnections()
	t.Cleanup(server.close)

	return server
}

func (s *miniSMTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *miniSMTPServer) handleConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		s.mx.Lock()
		s.conns++
		s.mx.Unlock()

		go func() {
			defer conn.Close()
			s.handleSMTP(conn)
		}()
	}
}

func (s *miniSMTPServer) handleSMTP(conn net.Conn) {
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(line string) {
		writer.WriteString(line + "\r\n")
		writer.Flush()
	}

	reply(s.greeting)
	if !strings.HasPrefix(s.greeting, "220") {
		return
	}

	accepted := 0
	secure := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "EHLO"):
			ext := "250-localhost\r\n250-SIZE 10240000\r\n"
			if s.cert != nil && !secure {
				ext += "250-STARTTLS\r\n"
			}
			if s.auth != "" {
				ext += "250-AUTH " + s.auth + "\r\n"
			}
			reply(ext + "250 HELP")
		case line == "STARTTLS" && s.cert != nil && !secure:
			reply("220 Ready to start TLS")
			tlsConn := tls.Server(conn, &tls.Config{
				Certificates: []tls.Certificate{*s.cert},
				MinVersion:   tls.VersionTLS12,
			})
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			reader = bufio.NewReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)
			secure = true
		case strings.HasPrefix(line, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(line, "AUTH PLAIN"):
			fields := strings.Fields(line)
			if len(fields) == 3 {
				if raw, err := base64.StdEncoding.DecodeString(fields[2]); err == nil {
					s.mx.Lock()
					s.logins = append(s.logins, string(raw))
					s.mx.Unlock()
				}
			}
			if s.rejectAuth {
				reply("535 5.7.8 Authentication credentials invalid")
				continue
			}
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(line, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(line, "RCPT TO:"):
			if s.rejectRcpt != "" && strings.Contains(line, s.rejectRcpt) {
				reply("550 5.1.1 No such user")
				continue
			}
			reply("250 OK")
		case line == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")

			var msg strings.Builder
			for {
				text, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(text, "\r\n") == "." {
					break
				}
				msg.WriteString(text)
			}

			s.mx.Lock()
			s.messages = append(s.messages, []byte(msg.String()))
			s.secure = append(s.secure, secure)
			s.mx.Unlock()
			accepted++

			if s.dropAfter > 0 && accepted >= s.dropAfter {
				return // no reply, the client sees EOF
			}
			reply("250 OK")
		case line == "RSET":
			reply("250 OK")
		case line == "QUIT":
			s.mx.Lock()
			s.quits++
			s.mx.Unlock()
			reply("221 localhost closing connection")
			return
		case line == "NOOP":
			reply("250 OK")
		default:
			// Unknown command
			reply("500 Syntax error")
		}
	}
}

func (s *miniSMTPServer) close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *miniSMTPServer) messageCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.messages)
}

func (s *miniSMTPServer) message(i int) string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return string(s.messages[i])
}

func (s *miniSMTPServer) quitCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.quits
}

func testConfig() Config {
	return Config{
		Port:         25,
		LocalName:    "localhost",
		TLS:          false,
		Auth:         true,
		DialTimeout:  time.Second,
		DialAttempts: 1,
		DialInterval: 10 * time.Millisecond,
	}
}

func testAccount(server string) mail.Account {
	return mail.Account{Address: "sender@example.com", Password: "secret", Server: server}
}

func TestSession_MiniSMTPServer_Success(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, nil)

	d := NewDialer(testConfig(), nil)
	ctx := context.Background()

	s, err := d.Dial(ctx, testAccount(server.addr()))
	require.NoError(t, err)
	defer s.Close()

	payload := []byte("Subject: test\r\n\r\nhello\r\n")
	require.NoError(t, s.Send(ctx, "sender@example.com", []string{"rcpt@example.com"}, payload))
	require.NoError(t, s.Send(ctx, "sender@example.com", []string{"a@example.com", "b@example.com"}, payload))

	assert.Equal(t, 2, server.messageCount())
	assert.Contains(t, server.message(0), "hello")
}

func TestSession_MiniSMTPServer_Auth(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
		s.auth = "PLAIN LOGIN"
	})

	s, err := NewDialer(testConfig(), nil).Dial(context.Background(), testAccount(server.addr()))
	require.NoError(t, err)
	defer s.Close()

	server.mx.Lock()
	defer server.mx.Unlock()
	require.Len(t, server.logins, 1)
	assert.Equal(t, "\x00sender@example.com\x00secret", server.logins[0])
}

func TestSession_MiniSMTPServer_AuthSkipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		configure func(cfg *Config, acc *mail.Account)
	}{
		{"disabled by config", func(cfg *Config, _ *mail.Account) { cfg.Auth = false }},
		{"no password", func(_ *Config, acc *mail.Account) { acc.Password = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
				s.auth = "PLAIN"
				s.rejectAuth = true
			})

			cfg := testConfig()
			acc := testAccount(server.addr())
			tt.configure(&cfg, &acc)

			s, err := NewDialer(cfg, nil).Dial(context.Background(), acc)
			require.NoError(t, err)
			assert.NoError(t, s.Close())
		})
	}
}

func TestSession_MiniSMTPServer_AuthRejected(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
		s.auth = "PLAIN"
		s.rejectAuth = true
	})

	s, err := NewDialer(testConfig(), nil).Dial(context.Background(), testAccount(server.addr()))
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, mail.ErrAuth)
	assert.NotErrorIs(t, err, mail.ErrDisconnected)
}

func TestSession_MiniSMTPServer_GreetingRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		greeting string
		kind     error
	}{
		{"service not available", "421 4.3.2 Too many connections", mail.ErrDisconnected},
		{"permanent", "554 5.3.2 No SMTP service here", mail.ErrProtocol},
		{"malformed", "hello there, not smtp", mail.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
				s.greeting = tt.greeting
			})

			_, err := NewDialer(testConfig(), nil).Dial(context.Background(), testAccount(server.addr()))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.NotErrorIs(t, err, mail.ErrConnection)
		})
	}
}

func TestSession_MiniSMTPServer_Disconnect(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
		s.dropAfter = 2
	})

	d := NewDialer(testConfig(), nil)
	ctx := context.Background()

	s, err := d.Dial(ctx, testAccount(server.addr()))
	require.NoError(t, err)
	defer s.Close()

	payload := []byte("hello\r\n")
	to := []string{"rcpt@example.com"}
	require.NoError(t, s.Send(ctx, "sender@example.com", to, payload))

	err = s.Send(ctx, "sender@example.com", to, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrDisconnected)

	// The old session is dead; a fresh one works.
	require.NoError(t, s.Close())
	s2, err := d.Dial(ctx, testAccount(server.addr()))
	require.NoError(t, err)
	defer s2.Close()
	assert.NoError(t, s2.Send(ctx, "sender@example.com", to, payload))
}

func TestSession_MiniSMTPServer_RecipientRejected(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, func(s *miniSMTPServer) {
		s.rejectRcpt = "nobody@example.com"
	})

	ctx := context.Background()
	s, err := NewDialer(testConfig(), nil).Dial(ctx, testAccount(server.addr()))
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(ctx, "sender@example.com", []string{"nobody@example.com"}, []byte("hello\r\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrProtocol)

	// The transaction was reset, so the session is still usable.
	assert.NoError(t, s.Send(ctx, "sender@example.com", []string{"rcpt@example.com"}, []byte("hello\r\n")))
	assert.Equal(t, 1, server.messageCount())
}

func TestSession_Close_Idempotent(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, nil)

	s, err := NewDialer(testConfig(), nil).Dial(context.Background(), testAccount(server.addr()))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	assert.Eventually(t, func() bool { return server.quitCount() == 1 }, time.Second, 10*time.Millisecond)

	err = s.Send(context.Background(), "sender@example.com", []string{"rcpt@example.com"}, []byte("x"))
	assert.ErrorIs(t, err, mail.ErrDisconnected)
}

func TestSession_Send_NoRecipients(t *testing.T) {
	t.Parallel()
	server := startMiniSMTPServer(t, nil)

	s, err := NewDialer(testConfig(), nil).Dial(context.Background(), testAccount(server.addr()))
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), "sender@example.com", nil, []byte("x"))
	assert.ErrorIs(t, err, mail.ErrProtocol)
}

func TestDialer_ConnectionRefused(t *testing.T) {
	t.Parallel()

	// Reserve a port and release it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig()
	cfg.DialAttempts = 3

	start := time.Now()
	_, err = NewDialer(cfg, nil).Dial(context.Background(), testAccount(addr))
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrConnection)
	assert.GreaterOrEqual(t, time.Since(start), 2*cfg.DialInterval)
}

func TestDialer_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer(testConfig(), nil).Dial(ctx, testAccount("127.0.0.1:1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrConnection)
}

func TestDialer_NoServer(t *testing.T) {
	t.Parallel()

	_, err := NewDialer(testConfig(), nil).Dial(context.Background(), mail.Account{Address: "a@example.com"})
	assert.ErrorIs(t, err, ErrNoServer)
	assert.ErrorIs(t, err, mail.ErrConnection)
}

func TestDialer_Address(t *testing.T) {
	t.Parallel()

	d := NewDialer(Config{Port: 2525}, nil)

	tests := []struct {
		server string
		want   string
	}{
		{"smtp.example.com", "smtp.example.com:2525"},
		{"smtp.example.com:465", "smtp.example.com:465"},
		{"127.0.0.1", "127.0.0.1:2525"},
		{"::1", "[::1]:2525"},
		{"[::1]:25", "[::1]:25"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, d.address(tt.server), tt.server)
	}
}

func TestSASLClient(t *testing.T) {
	t.Parallel()

	acc := mail.Account{Address: "user@example.com", Password: "pw"}

	tests := []struct {
		mechs string
		want  string
	}{
		{"PLAIN LOGIN", sasl.Plain},
		{"LOGIN", sasl.Login},
		{"login", sasl.Login},
		{"CRAM-MD5", sasl.Plain},
		{"", sasl.Plain},
	}

	for _, tt := range tests {
		mech, _, err := saslClient(tt.mechs, acc).Start()
		require.NoError(t, err)
		assert.Equal(t, tt.want, mech, tt.mechs)
	}
}
