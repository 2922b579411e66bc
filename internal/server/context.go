package server

import (
	"context"
	"time"
)

type contextKey string

const requestContextKey contextKey = "request_context"

// RequestContext carries per-request identity through the processing chain.
// TenantID starts out from the auth claims (if present) and is back-filled by
// tenant resolution, so handlers downstream always see the resolved value.
type RequestContext struct {
	CorrelationID string
	CallerID      string
	TenantID      string
	StartTime     time.Time
}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// GetRequestContext retrieves the request context. Returns nil if the request
// did not pass through the dispatcher.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// GetCorrelationID retrieves the correlation ID from context.
// Returns an empty string if none is set.
func GetCorrelationID(ctx context.Context) string {
	if rc := GetRequestContext(ctx); rc != nil {
		return rc.CorrelationID
	}
	return ""
}
