// Package logger builds the process-wide slog.Logger and carries request-scoped
// loggers through context. Field helpers keep attribute keys consistent
// between the planner, the stores, and the worker.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the handler used for output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatText,
	}
}

// ForEnvironment returns JSON output in production and text elsewhere.
func ForEnvironment(env, level string) Options {
	opts := DefaultOptions()
	opts.Level = ParseLevel(level)
	if env == "production" {
		opts.Format = FormatJSON
		opts.AddSource = true
	}
	return opts
}

// New creates a slog.Logger from opts.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}
	return slog.New(handler)
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Planner field helpers.
func TrainingID(id string) slog.Attr  { return slog.String("training_id", id) }
func Backend(name string) slog.Attr   { return slog.String("backend", name) }
func Component(name string) slog.Attr { return slog.String("component", name) }
func Operation(name string) slog.Attr { return slog.String("operation", name) }
func PoolSize(n int) slog.Attr        { return slog.Int("pool_size", n) }
func StageCount(n int) slog.Attr      { return slog.Int("stage_count", n) }
func CycleCount(n int) slog.Attr      { return slog.Int("cycle_count", n) }
func Attempt(n int) slog.Attr         { return slog.Int("attempt", n) }
func Latency(d time.Duration) slog.Attr {
	return slog.Duration("latency", d)
}

// Err creates an error attribute; nil errors are logged as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
