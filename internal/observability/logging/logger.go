// Package logging builds the process logger and carries request-scoped
// loggers through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"sonde-catalog/internal/handler/http/requestid"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// File, when set, receives a JSON copy of every record while stdout
	// switches to the text format.
	File string
}

// ParseLevel maps a level name (case-insensitive) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates the process logger. The returned cleanup closes the log file,
// if one was opened. A file that cannot be opened is reported on stdout and
// logging continues without it.
func New(opts Options) (*slog.Logger, func() error) {
	level, _ := ParseLevel(opts.Level)
	noop := func() error { return nil }

	if opts.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(level))), noop
	}

	// #nosec G304 -- path comes from operator configuration
	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(level)))
		logger.Error("failed to open log file, using stdout only",
			slog.String("file", opts.File),
			slog.Any("error", err))
		return logger, noop
	}

	return NewWithWriters(os.Stdout, file, level), file.Close
}

// NewWithWriters fans out text records to console and JSON records to file.
func NewWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, handlerOptions(level)),
		slog.NewJSONHandler(file, handlerOptions(level)),
	))
}

// NewLogger creates a JSON logger on stdout with the level from LOG_LEVEL.
func NewLogger() *slog.Logger {
	logger, _ := New(Options{Level: os.Getenv("LOG_LEVEL")})
	return logger
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		// source locations only for verbose output
		AddSource: level <= slog.LevelDebug,
	}
}

// WithRequestID returns logger annotated with the request ID carried by ctx.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		return logger
	}
	return logger.With("request_id", reqID)
}

// FromContext retrieves the logger stored by WithLogger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
