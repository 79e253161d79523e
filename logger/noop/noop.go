// Package noop provides a logger for tests and headless runs that must
// stay silent.
package noop

import (
	"log/slog"
)

func NewNoop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
