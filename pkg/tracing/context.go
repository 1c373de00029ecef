package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tokmz/huddle"

// 实时核心 span 属性
const (
	AttrConnID      = attribute.Key("huddle.conn_id")
	AttrPrincipalID = attribute.Key("huddle.principal_id")
	AttrKind        = attribute.Key("huddle.event.kind")
	AttrRoomID      = attribute.Key("huddle.room_id")
	AttrRecipients  = attribute.Key("huddle.event.recipients")
)

// StartSpan 用全局 Provider 开启内部 span
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Annotate 给 ctx 中的当前 span 追加属性，没有 span 时无操作
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError 记录错误并标记 span 失败
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
