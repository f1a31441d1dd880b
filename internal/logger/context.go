package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger attaches the per-request logger, already tagged with
// request_id by the HTTP middleware, so predictor log lines can be joined to
// the access log.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the per-request logger. Outside a request (CLI runs,
// startup) it returns the process logger installed with zap.ReplaceGlobals.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.L()
}
