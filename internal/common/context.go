package common

import "context"

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// WithRequestID stamps a correlation id onto the context. The pipeline sets
// the task id here so per-stage logs line up under one key.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the correlation id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}
