// Package tenant resolves the tenant a request operates under: either
// the caller-supplied tenant id or the configured default, carried
// through a request's context.Context alongside the caller identity,
// cancel signal, and request id (spec.md §6's request envelope).
package tenant

import "context"

// DefaultTenantID is used whenever a caller omits a tenant id.
const DefaultTenantID = "default"

type contextKey string

const (
	tenantContextKey contextKey = "tenant_id"
	requestIDKey     contextKey = "request_id"
	callerKey        contextKey = "caller_identity"
)

// Resolve returns tenantID, or DefaultTenantID if it is empty.
func Resolve(tenantID string) string {
	if tenantID == "" {
		return DefaultTenantID
	}
	return tenantID
}

// WithTenant returns a context carrying the resolved tenant id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey, Resolve(tenantID))
}

// FromContext returns the tenant id carried by ctx, or DefaultTenantID
// if none was set.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantContextKey).(string); ok && v != "" {
		return v
	}
	return DefaultTenantID
}

// WithRequestID returns a context carrying a request id for logging and
// tracing correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id carried by ctx, or "" if
// none was set.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithCaller returns a context carrying the caller's identity (e.g. an
// API key id or service account name).
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller identity carried by ctx, or "" if
// none was set.
func CallerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
