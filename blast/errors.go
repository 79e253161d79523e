package blast

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidPlan      = errors.New("invalid send plan")
	ErrEmergencyStop    = errors.New("emergency stop: work partition does not match the requested total")
	ErrNotReady         = errors.New("coordinator is not ready")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	ErrUnknownLocality  = errors.New("cannot determine whether the server is local")
)

// RetriesExhaustedError is returned by a worker that lost its session more
// often than the plan allows. It matches ErrRetriesExhausted and unwraps to
// the last disconnect.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// WorkerFailure is a fatal error of one worker.
type WorkerFailure struct {
	Worker   int
	Account  string
	Assigned int
	Sent     int
	Err      error
}

// ErrorInfo describes a failed run.
type ErrorInfo struct {
	Err      error // all failures joined
	Failures []WorkerFailure
}

func newErrorInfo(failures []WorkerFailure) *ErrorInfo {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = errors.Wrapf(f.Err, "worker %d (%s)", f.Worker, f.Account)
	}
	return &ErrorInfo{Err: stderrors.Join(errs...), Failures: failures}
}

func (i *ErrorInfo) Error() string {
	return fmt.Sprintf("%d worker(s) failed: %v", len(i.Failures), i.Err)
}

func (i *ErrorInfo) Unwrap() error {
	return i.Err
}
