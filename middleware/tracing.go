package middleware

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/huddle"
)

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	// TracerName Tracer 名称（默认 "huddle.http"）
	TracerName string

	// ExcludePaths 排除的路径（不追踪）
	ExcludePaths []string
}

// DefaultTracingConfig 返回默认配置
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		TracerName:   "huddle.http",
		ExcludePaths: []string{"/healthz"},
	}
}

// Tracing 创建链路追踪中间件
// 提取上游 TraceContext，创建 Server Span，并把 trace_id 写入 huddle.Context
func Tracing(cfgs ...*TracingConfig) huddle.HandlerFunc {
	cfg := DefaultTracingConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	skipMap := make(map[string]bool)
	for _, path := range cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *huddle.Context) {
		req := c.Request()
		if skipMap[req.URL.Path] {
			c.Next()
			return
		}

		// 每次请求获取 tracer，Provider 可能晚于路由注册初始化
		tracer := otel.Tracer(cfg.TracerName)
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginalKey.String(req.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		}
		if full := c.FullPath(); full != "" {
			attrs = append(attrs, semconv.HTTPRouteKey.String(full))
		}
		ctx, span := tracer.Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		huddle.SetContextTraceID(c, span.SpanContext().TraceID().String())
		c.SetRequestContext(ctx)

		// 注入响应头须在写出响应前完成
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
