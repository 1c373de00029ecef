package huddle

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/huddle/pkg/logger"
)

// Config Engine 配置
//
// WriteTimeout 只约束普通 HTTP 请求；WebSocket 升级后连接被劫持，
// 读写期限由 Hub 自行设置。
type Config struct {
	Mode           string // debug, release, test
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string

	// ShutdownTimeout 覆盖 BeforeShutdown 与 http.Server.Shutdown 的总时长
	ShutdownTimeout time.Duration
	// BeforeShutdown 在 HTTP 服务停止前调用，用于关闭长连接
	BeforeShutdown func(ctx context.Context)
	AfterShutdown  func()

	Logger logger.Logger
}

// Option 配置选项
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Mode:            gin.ReleaseMode,
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

func WithMode(mode string) Option {
	return func(c *Config) { c.Mode = mode }
}

func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithReadTimeout 包括 WebSocket 握手请求
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithBeforeShutdown 设置关机前回调，ctx 带 ShutdownTimeout 期限
func WithBeforeShutdown(fn func(ctx context.Context)) Option {
	return func(c *Config) { c.BeforeShutdown = fn }
}

func WithAfterShutdown(fn func()) Option {
	return func(c *Config) { c.AfterShutdown = fn }
}

// WithTrustedProxies 影响 ClientIP，限流按它分桶
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) { c.TrustedProxies = proxies }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
