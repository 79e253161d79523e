package stdjson

import (
	"io"
	"log/slog"
	"time"
)

// NewDefault returns a JSON logger. Durations are written as strings
// ("180ms") rather than nanosecond counts.
func NewDefault(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: durationString,
	}))
}

func durationString(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond).String())
	}
	return a
}
