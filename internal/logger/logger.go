// Package logger provides context-scoped structured logging: callers pass
// ctx first, and fields already attached to the context (request id,
// conversation id, pipeline stage) are merged into every entry.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// CloneContext returns a context carrying a fresh logrus entry, the way
// handlers call logger.CloneContext(c.Request.Context()) before logging so
// that per-request fields don't leak across goroutines sharing a context.
func CloneContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, logrus.NewEntry(base))
}

// WithFields returns a context with additional structured fields merged
// into whatever entry is already attached.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry(ctx).WithFields(fields))
}

func entry(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(base)
}

func Info(ctx context.Context, args ...interface{})  { entry(ctx).Info(args...) }
func Warn(ctx context.Context, args ...interface{})  { entry(ctx).Warn(args...) }
func Error(ctx context.Context, args ...interface{}) { entry(ctx).Error(args...) }

func Infof(ctx context.Context, format string, args ...interface{}) {
	entry(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	entry(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	entry(ctx).Errorf(format, args...)
}
