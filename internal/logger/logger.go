package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a structured logger writing to stdout.
func New(level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

func NewWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// LogQuery logs a storage call with its duration.
func LogQuery(l *slog.Logger, name string, took time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.String("query", name),
		slog.Duration("took", took),
	}
	if err != nil {
		l.Error("Query failed", append(attrs, slog.Any("error", err))...)
		return
	}
	l.Debug("Query executed", attrs...)
}
