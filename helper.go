package huddle

import "github.com/tokmz/huddle/pkg/auth"

const (
	// ContextTraceIDKey 链路追踪trace_id键
	ContextTraceIDKey = "trace_id"
	// ContextPrincipalKey 已认证身份键
	ContextPrincipalKey = "principal"
)

// GetContextTraceID 获取上下文链路追踪trace_id
func GetContextTraceID(ctx *Context) string {
	return ctx.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置上下文链路追踪trace_id
func SetContextTraceID(ctx *Context, traceID string) {
	ctx.Set(ContextTraceIDKey, traceID)
}

// GetContextPrincipal 获取认证中间件写入的身份
func GetContextPrincipal(ctx *Context) (*auth.Principal, bool) {
	v, ok := ctx.Get(ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

// SetContextPrincipal 设置已认证身份
func SetContextPrincipal(ctx *Context, p *auth.Principal) {
	ctx.Set(ContextPrincipalKey, p)
}
