// Package logging provides a small structured-logging abstraction so the
// stomp core can report what it is doing without depending on any
// particular logging library. There is no package-level logger: every
// caller that wants diagnostics passes one in explicitly.
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (lv Level) label() string {
	switch lv {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger is the interface the core depends on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields returns a derived Logger that always includes fields
	// on top of whatever is passed at each call site.
	WithFields(fields ...Field) Logger
}

// Field is a single structured log attribute.
type Field struct {
	Key   string
	Value any
}

func field(key string, value any) Field { return Field{Key: key, Value: value} }

func String(key, value string) Field      { return field(key, value) }
func Int(key string, value int) Field     { return field(key, value) }
func Int64(key string, value int64) Field { return field(key, value) }
func Uint64(key string, value uint64) Field {
	return field(key, value)
}
func Float64(key string, value float64) Field { return field(key, value) }
func Bool(key string, value bool) Field       { return field(key, value) }
func Any(key string, value any) Field         { return field(key, value) }
func Error(err error) Field                   { return field("error", err) }

// Duration formats a time.Duration field.
func Duration(key string, value time.Duration) Field { return field(key, value) }

// StdLogger is a Logger backed by the standard library's log package.
// Each call writes one line: "[LEVEL] <prefix> <msg> key=value ...".
type StdLogger struct {
	prefix string
	fields []Field
}

// NewStdLogger creates a StdLogger with the given line prefix.
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.write(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.write(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.write(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.write(ErrorLevel, msg, fields)
}

func (l *StdLogger) write(level Level, msg string, fields []Field) {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.label())
	b.WriteString("] ")
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	for _, f := range l.fields {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	log.Println(b.String())
}

func writeField(b *strings.Builder, f Field) {
	b.WriteByte(' ')
	b.WriteString(f.Key)
	b.WriteByte('=')
	b.WriteString(renderValue(f.Value))
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

// WithFields returns a new StdLogger carrying l's fields plus the given
// ones; it never mutates l.
func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{prefix: l.prefix, fields: merged}
}

// NoopLogger discards everything. Used as the default when a caller does
// not supply a Logger.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }
