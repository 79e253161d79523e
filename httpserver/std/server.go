package std

import (
	"context"
	stdErr "errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/httpserver"
)

const ShutdownTimeout = 15 * time.Second

var _ httpserver.RunableProvider = (*Server)(nil)

type Config struct {
	Enabled     bool          `envconfig:"CONTROL_ENABLED" default:"false"`
	Host        string        `envconfig:"CONTROL_HOST" default:"127.0.0.1"`
	Port        int           `envconfig:"CONTROL_PORT" default:"8025"`
	TLSCertPath string        `envconfig:"CONTROL_TLS_CERT_PATH"`
	TLSKeyPath  string        `envconfig:"CONTROL_TLS_KEY_PATH"`
	ReadTimeout time.Duration `envconfig:"CONTROL_READ_TIMEOUT" default:"30s"`
}

type Server struct {
	logger *slog.Logger
	server *http.Server
	config Config

	mx       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func New(c Config, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.WithGroup("webserver")

	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Handler:           h,
			ReadTimeout:       c.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
		logger: logger,
		config: c,
		ready:  make(chan struct{}),
	}
}

// Start listens and serves until Close. It blocks.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		close(s.ready)
		return errors.Wrapf(err, "failed to listen on %s", s.server.Addr)
	}
	s.mx.Lock()
	s.listener = l
	s.mx.Unlock()
	close(s.ready)

	s.logger.Info("server starting", slog.String("addr", l.Addr().String()))

	if s.config.TLSCertPath == "" {
		err = s.server.Serve(l)
	} else {
		err = s.server.ServeTLS(l, s.config.TLSCertPath, s.config.TLSKeyPath)
	}

	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return errors.Wrapf(err, "serve failed")
}

// Addr waits until Start has bound the listener and returns its address.
// It returns "" when listening failed.
func (s *Server) Addr() string {
	<-s.ready
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		err = stdErr.Join(err, errors.Wrapf(s.server.Close(), "failed to close server"))
	}

	s.logger.Info("server closed")

	return errors.Wrapf(err, "server shutdown failed")
}

// Run starts the server in the background.
func (s *Server) Run() {
	go func() {
		err := s.Start()
		if err != nil {
			s.logger.With("error", err).Error("webserver crashed")
		}
	}()
}
