package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每秒补充的令牌数（默认 20）
	RequestsPerSecond float64

	// Burst 突发容量（默认 40）
	Burst int

	// KeyFunc 自定义限流 key 函数（默认使用客户端 IP）
	KeyFunc func(c *huddle.Context) string

	// ExcludePaths 排除的路径（不限流）
	ExcludePaths []string

	// Logger 日志实例
	Logger logger.Logger

	// CleanupInterval 过期桶清理间隔（默认 10 分钟）
	CleanupInterval time.Duration

	// BucketExpiry 桶过期时间（默认 30 分钟无访问则清理）
	BucketExpiry time.Duration
}

// DefaultRateLimiterConfig 返回默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		CleanupInterval:   10 * time.Minute,
		BucketExpiry:      30 * time.Minute,
	}
}

// tokenBucket 令牌桶
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: now,
	}
}

// allow 按经过的时间补充令牌后尝试取一个
func (t *tokenBucket) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens += now.Sub(t.lastRefill).Seconds() * t.refillRate
	if t.tokens > t.maxTokens {
		t.tokens = t.maxTokens
	}
	t.lastRefill = now

	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

// RateLimiter 按 key 的令牌桶限流器，用于 WebSocket 握手入口
type RateLimiter struct {
	cfg  *RateLimiterConfig
	skip map[string]bool
	now  func() time.Time

	mu      sync.RWMutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter 创建限流器并启动后台清理，使用完毕调用 Stop
func NewRateLimiter(cfg *RateLimiterConfig) *RateLimiter {
	if cfg == nil {
		cfg = DefaultRateLimiterConfig()
	}
	def := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = def.BucketExpiry
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *huddle.Context) string {
			return c.ClientIP()
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	rl := &RateLimiter{
		cfg:     cfg,
		skip:    make(map[string]bool, len(cfg.ExcludePaths)),
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		done:    make(chan struct{}),
	}
	for _, path := range cfg.ExcludePaths {
		rl.skip[path] = true
	}

	go rl.cleanupLoop()
	return rl
}

// Handler 返回中间件
func (rl *RateLimiter) Handler() huddle.HandlerFunc {
	return func(c *huddle.Context) {
		if rl.skip[c.Request().URL.Path] {
			c.Next()
			return
		}

		key := rl.cfg.KeyFunc(c)
		if !rl.Allow(key) {
			rl.cfg.Logger.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request().URL.Path),
				zap.Float64("rate", rl.cfg.RequestsPerSecond),
			)
			c.AbortWithError(errors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// Allow 对 key 取一个令牌
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).allow(rl.now())
}

// Stop 停止后台清理，可重复调用
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) bucket(key string) *tokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[key]; ok {
		return b
	}
	b = newTokenBucket(rl.cfg.RequestsPerSecond, rl.cfg.Burst, rl.now())
	rl.buckets[key] = b
	return b
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup 清理长时间未访问的桶
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		expired := now.Sub(b.lastRefill) > rl.cfg.BucketExpiry
		b.mu.Unlock()
		if expired {
			delete(rl.buckets, key)
		}
	}
}

// size 当前桶数量
func (rl *RateLimiter) size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}
