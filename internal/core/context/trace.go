package context

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// TraceContext correlates the log lines of one unit of work: an HTTP
// request, a reconciliation tick or a seeding run.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds t to ctx.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// GetTrace returns the TraceContext in ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	t, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return t
}

// GetRequestID returns the request ID in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext creates IDs for work that did not come in over HTTP.
// Trace and span IDs use the W3C lengths (32 and 16 hex digits).
func NewTraceContext() *TraceContext {
	traceID := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &TraceContext{
		TraceID:   traceID,
		SpanID:    traceID[:16],
		RequestID: uuid.NewString(),
	}
}
