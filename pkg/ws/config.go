package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/huddle/pkg/logger"
)

// Config 实时核心配置
type Config struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	HandshakeTimeout time.Duration // 凭证校验超时
	MaxMessageSize   int64         // 单帧最大字节数
	SendQueueSize    int           // 每个连接的发送队列长度
	WriteWait        time.Duration // 单次写超时
	MaxInvalidFrames int           // 连续非法帧上限，超过后关闭连接

	// 心跳配置
	HeartbeatInterval time.Duration // ping 间隔
	HeartbeatTimeout  time.Duration // 未收到 pong 的超时

	// 房间配置
	RoomConfig RoomConfig

	// Upgrader 配置
	UpgraderConfig UpgraderConfig

	// 扩展
	Metrics    Metrics       // 监控（默认空实现）
	Logger     logger.Logger // 日志（默认 Nop）
	Archiver   Archiver      // room.message 归档（可选）
	JoinPolicy JoinPolicy    // 入房策略（默认全部允许）
}

// RoomConfig 房间配置
type RoomConfig struct {
	MaxRoomSize     int // 单个房间最大人数，0 不限制
	MaxRoomsPerConn int // 单个连接最多加入的房间数（不含私有房间），0 不限制
}

// UpgraderConfig Upgrader 配置
type UpgraderConfig struct {
	ReadBufferSize    int                      // 读缓冲区大小
	WriteBufferSize   int                      // 写缓冲区大小
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	EnableCompression bool                     // 是否启用压缩
	AllowedOrigins    []string                 // 允许的 Origin 白名单，"*" 表示全部
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HandshakeTimeout:  5 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB，白板增量帧也足够
		SendQueueSize:     256,
		WriteWait:         10 * time.Second,
		MaxInvalidFrames:  10,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		RoomConfig: RoomConfig{
			MaxRoomSize:     500,
			MaxRoomsPerConn: 64,
		},
		UpgraderConfig: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("MaxConnections must be positive, got %d", c.MaxConnections)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("HandshakeTimeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MaxMessageSize must be positive, got %d", c.MaxMessageSize)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SendQueueSize must be positive, got %d", c.SendQueueSize)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("WriteWait must be positive, got %v", c.WriteWait)
	}
	if c.MaxInvalidFrames < 0 {
		return fmt.Errorf("MaxInvalidFrames must not be negative, got %d", c.MaxInvalidFrames)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("HeartbeatTimeout (%v) must be greater than HeartbeatInterval (%v)",
			c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.RoomConfig.MaxRoomSize < 0 {
		return fmt.Errorf("RoomConfig.MaxRoomSize must not be negative, got %d", c.RoomConfig.MaxRoomSize)
	}
	if c.RoomConfig.MaxRoomsPerConn < 0 {
		return fmt.Errorf("RoomConfig.MaxRoomsPerConn must not be negative, got %d", c.RoomConfig.MaxRoomsPerConn)
	}
	if c.UpgraderConfig.ReadBufferSize <= 0 {
		return fmt.Errorf("UpgraderConfig.ReadBufferSize must be positive, got %d", c.UpgraderConfig.ReadBufferSize)
	}
	if c.UpgraderConfig.WriteBufferSize <= 0 {
		return fmt.Errorf("UpgraderConfig.WriteBufferSize must be positive, got %d", c.UpgraderConfig.WriteBufferSize)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHandshakeTimeout 设置凭证校验超时
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = timeout
	}
}

// WithHeartbeat 设置心跳间隔与超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithMessageSizeLimit 设置单帧大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithMaxInvalidFrames 设置连续非法帧上限
func WithMaxInvalidFrames(n int) Option {
	return func(c *Config) {
		c.MaxInvalidFrames = n
	}
}

// WithRoomLimits 设置房间容量与单连接房间数
func WithRoomLimits(maxRoomSize, maxRoomsPerConn int) Option {
	return func(c *Config) {
		c.RoomConfig.MaxRoomSize = maxRoomSize
		c.RoomConfig.MaxRoomsPerConn = maxRoomsPerConn
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.UpgraderConfig.AllowedOrigins = allowedOrigins
		c.UpgraderConfig.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithEnableCompression 启用压缩
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.EnableCompression = enable
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithArchiver 设置消息归档
func WithArchiver(a Archiver) Option {
	return func(c *Config) {
		c.Archiver = a
	}
}

// WithJoinPolicy 设置入房策略
func WithJoinPolicy(p JoinPolicy) Option {
	return func(c *Config) {
		c.JoinPolicy = p
	}
}

// defaultCheckOrigin 默认 Origin 检查
// 非浏览器客户端（无 Origin）放行，浏览器必须同源
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		whitelist[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return whitelist[origin]
	}
}

// newUpgrader 创建升级器
func newUpgrader(config UpgraderConfig) *websocket.Upgrader {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		if len(config.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(config.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		CheckOrigin:       checkOrigin,
		EnableCompression: config.EnableCompression,
	}
}
