package huddle

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

// Context 包装 gin.Context，只暴露 relay API 和中间件用到的部分
type Context struct {
	ctx *gin.Context
}

func (c *Context) Request() *http.Request { return c.ctx.Request }
func (c *Context) Writer() gin.ResponseWriter { return c.ctx.Writer }
func (c *Context) Param(key string) string { return c.ctx.Param(key) }
func (c *Context) GetHeader(key string) string { return c.ctx.GetHeader(key) }
func (c *Context) Header(key, value string) { c.ctx.Header(key, value) }
func (c *Context) ClientIP() string { return c.ctx.ClientIP() }
func (c *Context) Set(key string, value any) { c.ctx.Set(key, value) }
func (c *Context) Get(key string) (any, bool) { return c.ctx.Get(key) }
func (c *Context) GetString(key string) string { return c.ctx.GetString(key) }
func (c *Context) Next() { c.ctx.Next() }
func (c *Context) Abort() { c.ctx.Abort() }
func (c *Context) AbortWithStatus(code int) { c.ctx.AbortWithStatus(code) }

// FullPath 路由模板，如 /api/v1/rooms/:roomId/members，未匹配时为空
func (c *Context) FullPath() string { return c.ctx.FullPath() }

// bind GET/DELETE 绑定查询参数，其他方法按 Content-Type 绑定请求体；
// 路径参数总是尝试绑定，没有 uri 标签时忽略失败
func (c *Context) bind(obj any) error {
	var err error
	switch c.ctx.Request.Method {
	case http.MethodGet, http.MethodDelete:
		err = c.ctx.ShouldBindQuery(obj)
	default:
		err = c.ctx.ShouldBind(obj)
	}
	if err != nil {
		return errors.ErrBadRequest.WithError(err)
	}
	_ = c.ctx.ShouldBindUri(obj)
	return nil
}

// Success 200 + CodeOK
func (c *Context) Success(data any) {
	c.respond(http.StatusOK, Success(data))
}

// Nil 没有数据的成功响应
func (c *Context) Nil() {
	c.Success(nil)
}

// RespondError 错误响应，状态与错误码取自错误链上的 *errors.Error
func (c *Context) RespondError(err error) {
	var bizErr *errors.Error
	if errors.As(err, &bizErr) {
		c.respond(bizErr.Status, NewResponse(bizErr.Code, nil, bizErr.Message))
		return
	}

	// 未知错误只进请求日志，不返回给客户端
	if err != nil {
		_ = c.ctx.Error(err)
	}
	c.respond(errors.ErrServer.Status, NewResponse(errors.ErrServer.Code, nil, errors.ErrServer.Message))
}

// AbortWithError RespondError 后中止后续处理
func (c *Context) AbortWithError(err error) {
	c.RespondError(err)
	c.Abort()
}

func (c *Context) respond(status int, resp *Response) {
	resp.TraceID = GetContextTraceID(c)
	c.ctx.JSON(status, resp)
}

// RequestContext 请求的 context.Context，带上 logger 包识别的 trace/principal 字段，
// 传给 Hub 后日志可以直接关联到请求
func (c *Context) RequestContext() context.Context {
	ctx := c.ctx.Request.Context()
	if traceID := GetContextTraceID(c); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}
	if p, ok := GetContextPrincipal(c); ok {
		ctx = logger.WithPrincipalID(ctx, p.ID)
	}
	return ctx
}

// SetRequestContext 替换请求的 ctx，追踪中间件用它注入 span
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}
