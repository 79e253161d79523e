// Package executor runs external programs on behalf of a send run.
package executor

import (
	"context"
	"io"
)

// Executor runs one preconfigured program. Execute returns its stdout; a
// non-zero exit or a timeout is an error.
type Executor interface {
	Execute(ctx context.Context, args ...string) ([]byte, error)
	io.Closer
}

// Checker is implemented by executors that can verify the program exists
// before the run starts.
type Checker interface {
	Start() error
}
