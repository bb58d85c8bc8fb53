package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

// ParseLogLevel maps a config string to a LogLevel. Unknown values fall
// back to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger emits structured JSON log lines. Field-adding methods return a
// derived logger and never mutate the receiver, so a Logger may be shared
// across goroutines.
type Logger struct {
	sl    *slog.Logger
	level LogLevel
}

// NewLogger writes JSON log lines at or above level to output (stdout when
// nil).
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	h := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: slogLevels[level]})
	return &Logger{sl: slog.New(h), level: level}
}

func (l *Logger) derive(args ...interface{}) *Logger {
	return &Logger{sl: l.sl.With(args...), level: l.level}
}

// WithField returns a logger that includes key=value on every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(key, value)
}

// WithFields returns a logger that includes every given field.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(args...)
}

// WithError attaches err under the "error" key. A nil err returns the
// receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive("error", err.Error())
}

// WithComponent tags log lines with the emitting component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive("component", name)
}

func (l *Logger) Debug(msg string) { l.sl.Debug(msg) }
func (l *Logger) Info(msg string)  { l.sl.Info(msg) }
func (l *Logger) Warn(msg string)  { l.sl.Warn(msg) }
func (l *Logger) Error(msg string) { l.sl.Error(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stamps a request id onto the context for downstream log
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id stamped by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
