// internal/logging/context.go
package logging

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := CallIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("call_id", id))
	}
	if id := ContactIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("contact_id", id))
	}
	return fields
}

type requestCtxKey struct{}
type callCtxKey struct{}
type contactCtxKey struct{}
type loggerCtxKey struct{}

// maxIDLen bounds correlation ids taken from untrusted webhook payloads.
const maxIDLen = 128

// sanitizeID truncates long ids and drops invalid UTF-8.
func sanitizeID(id string) string {
	if !utf8.ValidString(id) {
		return ""
	}
	if len(id) > maxIDLen {
		return id[:maxIDLen]
	}
	return id
}

// WithRequestID adds the HTTP request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID = sanitizeID(requestID); requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithCallID adds the voice call id to context.
func WithCallID(ctx context.Context, callID string) context.Context {
	if callID = sanitizeID(callID); callID == "" {
		return ctx
	}
	return context.WithValue(ctx, callCtxKey{}, callID)
}

// CallIDFromContext extracts the voice call id from context.
func CallIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(callCtxKey{}).(string)
	return s
}

// WithContactID adds the CRM contact id to context.
func WithContactID(ctx context.Context, contactID string) context.Context {
	if contactID = sanitizeID(contactID); contactID == "" {
		return ctx
	}
	return context.WithValue(ctx, contactCtxKey{}, contactID)
}

// ContactIDFromContext extracts the CRM contact id from context.
func ContactIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contactCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
