// Package logging provides component-scoped structured logging for the bank.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// AccountKey carries the authenticated account key through request contexts.
	AccountKey contextKey = "account_key"
	// RoleKey carries the authenticated role through request contexts.
	RoleKey contextKey = "role"
	// RequestIDKey carries the request correlation ID.
	RequestIDKey contextKey = "request_id"
)

// Logger wraps a logrus entry scoped to a component.
type Logger struct {
	entry *logrus.Entry
}

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel sets the global log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)
}

// New creates a logger scoped to the given component.
func New(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// WithField returns a logger with an additional structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger with additional structured fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithContext attaches request-scoped identity fields when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	entry := l.entry
	if v, ok := ctx.Value(AccountKey).(string); ok && v != "" {
		entry = entry.WithField("account", v)
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		entry = entry.WithField("request_id", v)
	}
	return &Logger{entry: entry}
}

func (l *Logger) Debug(args ...any)                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(args ...any)                  { l.entry.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(args ...any)                  { l.entry.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(args ...any)                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// GetAccountKey extracts the authenticated account key from a context.
func GetAccountKey(ctx context.Context) string {
	if v, ok := ctx.Value(AccountKey).(string); ok {
		return v
	}
	return ""
}

// GetRole extracts the authenticated role from a context.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}
