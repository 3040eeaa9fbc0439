package xlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewText(LevelInfo))
}

func Debug(msg string, fields ...slog.Attr) {
	Default().Debug(msg, fields...)
}

func Info(msg string, fields ...slog.Attr) {
	Default().Info(msg, fields...)
}

func Warn(msg string, fields ...slog.Attr) {
	Default().Warn(msg, fields...)
}
func Error(msg string, fields ...slog.Attr) {
	Default().Error(msg, fields...)
}

// Logger is a thin attribute-oriented wrapper over slog.
type Logger struct {
	json  bool
	out   io.Writer
	level slog.Level
	args  []any
	s     *slog.Logger
}

const (
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
)

var (
	Int      = slog.Int
	Any      = slog.Any
	Str      = slog.String
	Bool     = slog.Bool
	Time     = slog.Time
	Int64    = slog.Int64
	Uint64   = slog.Uint64
	Float64  = slog.Float64
	Duration = slog.Duration
)

func Err(e error) slog.Attr {
	return slog.Any("error", e)
}
func Uint(key string, v uint) slog.Attr {
	return slog.Uint64(key, uint64(v))
}
func State(s string) slog.Attr {
	return slog.String("state", s)
}
func Attempt(n uint) slog.Attr {
	return slog.Uint64("attempt", uint64(n))
}
func With(args ...any) *Logger {
	return Default().With(args...)
}
func WithLevel(level slog.Level) *Logger {
	return Default().WithLevel(level)
}

// New builds a logger writing to out. A nil out writes to stdout.
func New(out io.Writer, level slog.Level, json bool) *Logger {
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &Logger{s: slog.New(handler), json: json, out: out, level: level}
}
func NewText(level slog.Level) *Logger {
	return New(os.Stdout, level, false)
}
func NewJSON(level slog.Level) *Logger {
	return New(os.Stdout, level, true)
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return New(io.Discard, LevelError+4, false)
}

func Default() *Logger {
	return defaultLogger.Load()
}
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// ParseLevel maps the config spellings debug/info/warn/error to a level, falling back to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) With(args ...any) *Logger {
	merged := make([]any, 0, len(l.args)+len(args))
	merged = append(merged, l.args...)
	merged = append(merged, args...)
	return &Logger{s: l.s.With(args...), json: l.json, out: l.out, level: l.level, args: merged}
}

// WithLevel rebuilds the logger at level, keeping its output, format and attributes.
func (l *Logger) WithLevel(level slog.Level) *Logger {
	nl := New(l.out, level, l.json)
	if len(l.args) > 0 {
		nl = nl.With(l.args...)
	}
	return nl
}
func (l *Logger) Enabled(level slog.Level) bool {
	return l.s.Enabled(context.Background(), level)
}
func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelWarn, msg, fields...)
}
func (l *Logger) Error(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelError, msg, fields...)
}
