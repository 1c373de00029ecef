package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	connIDKey      contextKey = "conn_id"
	principalIDKey contextKey = "principal_id"
)

// WithTraceID 在 Context 中设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithConnID 在 Context 中设置连接 ID
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// WithPrincipalID 在 Context 中设置身份 ID
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalIDKey, principalID)
}

// TraceIDFrom 读取 TraceID，优先使用显式设置的值，其次使用 OpenTelemetry Span
func TraceIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// ContextFields 从 Context 中提取日志字段
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)

	if traceID := TraceIDFrom(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		fields = append(fields, zap.String("span_id", sc.SpanID().String()))
	}
	if v, ok := ctx.Value(connIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("conn_id", v))
	}
	if v, ok := ctx.Value(principalIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("principal_id", v))
	}
	return fields
}
