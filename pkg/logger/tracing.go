package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

var requestIDKey = contextKey{}

// NewRequestID generates an id for correlating log lines of one request.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID stores a request id in the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
