package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds operation-scoped logging context.
//
// The sync coordinator attaches one of these to the context of every drain
// cycle so that storage and transport log lines can be correlated back to
// the cycle and request that produced them.
type LogContext struct {
	CycleID   string // sync drain cycle identifier
	RequestID string // offline request being replayed
	Trigger   string // what started the cycle: manual, connectivity, interval
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// WithRequestID returns a context whose LogContext carries the given
// request ID. The parent LogContext, if any, is copied rather than mutated.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		return WithContext(ctx, &LogContext{RequestID: requestID})
	}
	clone := *lc
	clone.RequestID = requestID
	return WithContext(ctx, &clone)
}

// appendContextArgs appends LogContext fields to the slog argument list.
func appendContextArgs(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	if lc.CycleID != "" {
		args = append(args, "cycle", lc.CycleID)
	}
	if lc.RequestID != "" {
		args = append(args, "request", lc.RequestID)
	}
	if lc.Trigger != "" {
		args = append(args, "trigger", lc.Trigger)
	}
	return args
}
