package telemetry

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/lumberjack/v2"
	"github.com/lmittmann/tint"
)

// LoggerOptions selects the handlers NewLogger assembles.
type LoggerOptions struct {
	Level  string
	Format string // "json" or "text"
	// File, when set, receives a JSON copy of every record through a
	// rotating writer.
	File string
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: a console handler on w, optionally
// teed into a rotating JSON file. The returned closer releases the file and
// is never nil.
func NewLogger(w io.Writer, opts LoggerOptions) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(opts.Level)

	var console slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		console = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	} else {
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	if opts.File == "" {
		return slog.New(NewContextHandler(console)), io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	sinks := fanout{console, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})}
	return slog.New(NewContextHandler(sinks)), file
}
