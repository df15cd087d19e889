// Package audit emits structured audit events for token lifecycle and
// financial-state mutations.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zapFields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zapFields = append(zapFields, zap.String("request_id", rid))
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		zapFields = append(zapFields, zap.String("actor_user_id", principal.UserID))
		if principal.TenantID != nil {
			zapFields = append(zapFields, zap.String("actor_tenant_id", *principal.TenantID))
		}
	}
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	obs.Logger().Info(event, zapFields...)
	return nil
}
