package huddle

import (
	"errors"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

// LoggerConfig 请求日志配置
type LoggerConfig struct {
	Logger       logger.Logger // 为空时使用 Logger() 的参数
	SkipFunc     func(c *Context) bool
	ExcludePaths []string // 健康检查等高频路径
}

// Logger 请求日志中间件，按状态码分级；RespondError 吞掉的内部错误记在 errors 字段。
// WebSocket 升级请求在连接关闭后才返回，因此在会话结束时记录。
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	var cfg LoggerConfig
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = *cfgs[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		excluded[p] = struct{}{}
	}
	skip := func(c *Context) bool {
		if _, ok := excluded[c.Request().URL.Path]; ok {
			return true
		}
		return cfg.SkipFunc != nil && cfg.SkipFunc(c)
	}

	return func(c *Context) {
		if skip(c) {
			c.Next()
			return
		}

		start := time.Now()
		req := c.Request()
		path, method := req.URL.Path, req.Method

		c.Next()

		status := c.Writer().Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if errs := c.ctx.Errors.String(); errs != "" {
			fields = append(fields, zap.String("errors", errs))
		}

		log := cfg.Logger.WithContext(c.RequestContext())
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// Recovery 创建 panic 恢复中间件
// panic 时返回统一响应格式（500），并记录错误日志
func Recovery(log logger.Logger) HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}

	return func(c *Context) {
		defer func() {
			if err := recover(); err != nil {
				// 客户端主动断开
				if isBrokenPipe(err) {
					log.Error("broken pipe",
						zap.Any("error", err),
						zap.String("path", c.Request().URL.Path),
					)
					c.Abort()
					return
				}

				log.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)

				c.AbortWithError(apperrors.ErrServer)
			}
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(err any) bool {
	e, ok := err.(error)
	if !ok {
		return false
	}
	var ne *net.OpError
	if !errors.As(e, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
