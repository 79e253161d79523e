package cli

import (
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	hookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailblast_hook_duration_seconds",
			Help:    "Duration of completion hook runs",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{"command", "result"},
	)

	hookRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailblast_hook_runs_total",
			Help: "Completion hook runs by result",
		},
		[]string{"command", "result"},
	)
)

func init() {
	prometheus.MustRegister(hookDuration, hookRuns)
}

// hookResult is one of ok, timeout, exit, closed or error.
func hookResult(err error) string {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.As(err, &exitErr):
		if exitErr.ProcessState != nil && !exitErr.Exited() {
			return "timeout"
		}
		return "exit"
	default:
		return "error"
	}
}

func recordExecution(command string, err error, d time.Duration) {
	result := hookResult(err)
	hookDuration.WithLabelValues(command, result).Observe(d.Seconds())
	hookRuns.WithLabelValues(command, result).Inc()
}
