// Package infrastructure wires the cross-cutting runtime concerns the
// pipeline binaries share: structured logging with trace correlation,
// OpenTelemetry tracing and metrics, runtime stats collection, and the
// diagnostics HTTP endpoint exposed during long batch runs.
package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"qfactor/internal/config"
)

// contextKey is a private type for context keys.
type contextKey string

// traceIDContextKey carries the run's trace id through the pipeline.
const traceIDContextKey contextKey = "trace_id"

// NewLogger builds the slog logger the binaries install as default: JSON
// or text per configuration, leveled, writing to stdout, a rotating file,
// or both. Every record is routed through a handler that appends the
// trace id found in the call's context.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "file":
		output = rotatingFile(cfg.FilePath)
	case "both":
		output = io.MultiWriter(os.Stdout, rotatingFile(cfg.FilePath))
	default:
		output = os.Stdout
	}

	return newLoggerTo(output, cfg.Format, opts)
}

// newLoggerTo builds the handler chain onto an explicit writer. Tests use
// it to capture output.
func newLoggerTo(w io.Writer, format string, opts *slog.HandlerOptions) *slog.Logger {
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&traceHandler{Handler: handler})
}

// rotatingFile returns the size-capped, age-limited log sink. Rotation
// keeps unattended scheduled runs from growing a file without bound.
func rotatingFile(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// traceHandler injects the context's trace id into every record so log
// lines from one run correlate without threading the id by hand.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel converts a configuration string to a slog.Level,
// defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID returns a context carrying the given trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// GetTraceID retrieves the trace id from the context, empty when absent.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}
