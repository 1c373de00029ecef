package huddle

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlerFunc 路由处理函数和中间件函数
// 中间件需要调用 c.Next() 来继续执行后续处理
type HandlerFunc func(*Context)

// wrap 内部转换函数
func wrap(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("huddle: handler/middleware cannot be nil")
	}
	return func(c *gin.Context) {
		fn(&Context{ctx: c})
	}
}

// WrapHandler 将 huddle.HandlerFunc 转换为 gin.HandlerFunc
func WrapHandler(handler HandlerFunc) gin.HandlerFunc {
	return wrap(handler)
}

// WrapMiddlewares 批量转换多个中间件
func WrapMiddlewares(middlewares ...HandlerFunc) []gin.HandlerFunc {
	wrapped := make([]gin.HandlerFunc, len(middlewares))
	for i, middleware := range middlewares {
		wrapped[i] = wrap(middleware)
	}
	return wrapped
}

// FromHTTP 把 http.Handler 挂到路由上，WebSocket 升级需要原始的 ResponseWriter
func FromHTTP(h http.Handler) HandlerFunc {
	return func(c *Context) {
		h.ServeHTTP(c.Writer(), c.Request())
	}
}
