package log

import (
	"context"
	"log/slog"
)

type requestIDCtxKey struct{}

// ContextWithRequestID returns a copy of ctx that carries the request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	reqID, ok := ctx.Value(requestIDCtxKey{}).(string)
	return reqID, ok && reqID != ""
}

type handler struct {
	slog.Handler
}

var _ slog.Handler = (*handler)(nil)

func (h *handler) Handle(ctx context.Context, record slog.Record) error {
	if reqID, ok := RequestIDFromContext(ctx); ok {
		record.AddAttrs(slog.String("request_id", reqID))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{Handler: h.Handler.WithGroup(name)}
}
