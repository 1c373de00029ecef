package huddle

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/logger"
)

// Engine 基于 gin 的 HTTP 引擎，承载 WebSocket 入口和中继 API
type Engine struct {
	config *Config
	engine *gin.Engine
	server *http.Server
	log    logger.Logger
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	// gin.SetMode 是全局操作，进程内只应创建一个 Engine
	if gin.Mode() == gin.DebugMode || config.Mode != gin.DebugMode {
		gin.SetMode(config.Mode)
	}
	silenceGin()

	ginEngine := gin.New()
	log := config.Logger.Named("http")

	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			log.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	e := &Engine{
		config: config,
		engine: ginEngine,
		log:    log,
	}
	e.Use(Recovery(log))
	return e
}

// Default 创建带请求日志的 Engine
func Default(opts ...Option) *Engine {
	e := New(opts...)
	e.Use(Logger(e.log))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(WrapMiddlewares(middlewares...)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group: e.engine.Group(path, WrapMiddlewares(middlewares...)...),
	}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{
		group: &e.engine.RouterGroup,
	}
}

// Handler 底层 http.Handler，用于 httptest
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Logger 引擎日志
func (e *Engine) Logger() logger.Logger {
	return e.log
}

// Run 启动 HTTP 服务器，ctx 结束后优雅关机
func (e *Engine) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务，ctx 结束后优雅关机
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	e.server = &http.Server{
		Handler:        e.engine,
		ReadTimeout:    e.config.ReadTimeout,
		WriteTimeout:   e.config.WriteTimeout,
		IdleTimeout:    e.config.IdleTimeout,
		MaxHeaderBytes: e.config.MaxHeaderBytes,
	}
	e.logStartup(ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		e.log.Info("shutting down server")
	}

	return e.gracefulShutdown()
}

// gracefulShutdown 执行优雅关机流程
func (e *Engine) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.log.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	e.log.Info("server exited")
	return nil
}

// Shutdown 手动关闭服务器
// BeforeShutdown 先于 http.Server.Shutdown 执行：被劫持的 WebSocket 连接不受后者管理
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}

	if e.config.BeforeShutdown != nil {
		e.config.BeforeShutdown(ctx)
	}

	err := e.server.Shutdown(ctx)

	if e.config.AfterShutdown != nil {
		e.config.AfterShutdown()
	}
	return err
}
