// Package logger writes structured JSON logs through log/slog with a small
// field API and fragstore's domain keys.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents the severity of a log message. Values line up with
// slog's levels so they convert directly.
type Level int

const (
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
	LevelFatal Level = Level(slog.LevelError + 4)
)

// String returns the level name.
func (l Level) String() string {
	if l == LevelFatal {
		return "FATAL"
	}
	return slog.Level(l).String()
}

// ParseLevel parses a level name. Unknown names mean INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field is one key-value pair of a log entry.
type Field struct {
	Key   string
	Value any
}

func (f Field) attr() slog.Attr { return slog.Any(f.Key, f.Value) }

func String(key, value string) Field      { return Field{Key: key, Value: value} }
func Int(key string, value int) Field     { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field   { return Field{Key: key, Value: value} }
func Any(key string, value any) Field     { return Field{Key: key, Value: value} }

// Err records err's message under "error".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration records d in its human-readable form.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// Logger is a leveled JSON logger.
type Logger struct {
	s *slog.Logger
}

// New creates a Logger writing JSON lines to opts.Output (stdout if nil).
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	h := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
		AddSource: opts.AddCaller,
		Level:     slog.Level(opts.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, Level(lvl).String())
				}
			}
			return a
		},
	})
	return &Logger{s: slog.New(h)}
}

// Default logs INFO and above to stdout.
func Default() *Logger {
	return New(Options{Output: os.Stdout, Level: LevelInfo})
}

// Discard creates a logger that drops every entry.
func Discard() *Logger {
	return New(Options{Output: io.Discard, Level: LevelFatal + 1})
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.attr()
	}
	return &Logger{s: l.s.With(args...)}
}

// WithRequestID tags every entry with a request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String("request_id", requestID))
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.s.Enabled(ctx, slog.Level(level)) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = f.attr()
	}
	l.s.LogAttrs(ctx, slog.Level(level), msg, attrs...)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(LevelFatal, msg, fields)
	os.Exit(1)
}

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// Domain fields.
func Saga(name string) Field        { return String("saga", name) }
func Step(name string) Field        { return String("step", name) }
func PartitionID(id string) Field   { return String("partition", id) }
func Collection(name string) Field  { return String("collection", name) }
func StudentID(id string) Field     { return String("student_id", id) }
func CourseID(id string) Field      { return String("course_id", id) }
func StudyYear(year int) Field      { return Int("study_year", year) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Partitions(ids []string) Field { return Any("partitions", ids) }
