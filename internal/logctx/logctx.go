// Package logctx attaches a slog.Logger to a context.Context so that
// drivers and stream workers can log with operation-level attributes.
package logctx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With returns a copy of ctx carrying l.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to ctx, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
