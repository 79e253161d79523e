package cli

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/executor"
)

var (
	_ executor.Executor = (*Executor)(nil)
	_ executor.Checker  = (*Executor)(nil)
)

var ErrClosed = errors.New("executor is closed")

// Executor runs one configured command with per-call arguments.
type Executor struct {
	cmd     string
	timeout time.Duration
	closed  bool
	mx      sync.RWMutex
}

func New(cfg Config) *Executor {
	return &Executor{
		cmd:     cfg.Command,
		timeout: cfg.Timeout,
	}
}

// Start checks that the command exists.
func (e *Executor) Start() error {
	if _, err := exec.LookPath(e.cmd); err != nil {
		return errors.Wrapf(err, "command %s not found", e.cmd)
	}
	return nil
}

// Execute runs the command. A failing command's stderr is part of the error.
func (e *Executor) Execute(ctx context.Context, args ...string) ([]byte, error) {
	start := time.Now()
	stdout, stderr, err := e.execute(ctx, args)
	recordExecution(filepath.Base(e.cmd), err, time.Since(start))

	if err != nil {
		return stdout, errors.Wrapf(err, "command failed: %s", string(stderr))
	}
	return stdout, nil
}

func (e *Executor) execute(ctx context.Context, args []string) (stdout, stderr []byte, err error) {
	ctx, span := startHookSpan(ctx, e.cmd, args)
	defer func() { endHookSpan(span, err) }()

	e.mx.RLock()
	defer e.mx.RUnlock()

	if e.closed {
		return nil, nil, ErrClosed
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stdout, err = exec.CommandContext(ctx, e.cmd, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr = exitErr.Stderr
	}
	return stdout, stderr, err
}

func (e *Executor) Close() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.closed = true
	return nil
}
