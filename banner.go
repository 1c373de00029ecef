package huddle

import (
	"io"
	"runtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version 版本号
const Version = "0.3.0"

// logStartup 启动时输出运行信息和路由表
func (e *Engine) logStartup(addr string) {
	e.log.Info("huddle starting",
		zap.String("version", Version),
		zap.String("addr", addr),
		zap.String("mode", e.config.Mode),
		zap.String("go", runtime.Version()),
		zap.String("os", runtime.GOOS+"/"+runtime.GOARCH),
	)
	for _, r := range e.engine.Routes() {
		e.log.Debug("route", zap.String("method", r.Method), zap.String("path", r.Path))
	}
	if e.config.Mode == gin.DebugMode {
		e.log.Warn(`running in "debug" mode, switch to "release" in production`)
	}
}

// silenceGin 静默 gin 的默认输出，日志统一走 zap
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}
